// YouTube Data API v3 implementation of [Destination]
//
// The client is built from the user's OAuth credential and paces its calls
// with a [rate.Limiter]; the daily quota budget is shared across all users of
// the API project, so quota exhaustion is detected from the structured error
// body and surfaced as a distinct signal.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"spottransfer/internal/cache"
	"spottransfer/internal/shared"
)

const (
	youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

	// musicCategoryID restricts searches to the Music video category.
	musicCategoryID = "10"

	searchMaxResults = 5

	// maxDescriptionLength is the destination's playlist description limit,
	// counted in characters, not bytes.
	maxDescriptionLength = 5000
)

// quotaReasons are the structured error reason codes that mean the daily API
// quota is exhausted. Status 403 alone is not enough: plain permission errors
// share the status.
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

type youtubeErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// apiResponse is a raw destination API response: status plus body, kept so
// the retry loop can classify failures without re-reading the stream.
type apiResponse struct {
	StatusCode int
	Body       []byte
}

func (r *apiResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// isQuotaExceeded inspects a non-2xx response for the quota error shape.
func isQuotaExceeded(resp *apiResponse) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}

	var body youtubeErrorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false
	}

	for _, item := range body.Error.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}

// YouTubeService implements [Destination] against the YouTube Data API v3.
type YouTubeService struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	retry      shared.RetryPolicy
	logger     *log.Logger
}

// NewYouTubeService creates a destination client.
//
// client must already carry the user's OAuth credential (an [oauth2]
// transport). The cache is optional; without it every search hits the API.
func NewYouTubeService(client *http.Client, c *cache.Cache, logger *log.Logger) *YouTubeService {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &YouTubeService{
		baseURL:    youtubeBaseURL,
		httpClient: client,
		cache:      c,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		retry:      shared.DefaultRetryPolicy(),
		logger:     logger,
	}
}

// do performs one paced request and returns the raw response. Transport
// failures surface as errors; HTTP error statuses do not.
func (y *YouTubeService) do(ctx context.Context, method, endpoint string, payload any) (*apiResponse, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &apiResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// Search resolves a track display string to a video id, consulting the cache
// first. Quota exhaustion propagates as [shared.ErrQuotaExceeded]; every
// other failure degrades to "not found".
func (y *YouTubeService) Search(ctx context.Context, query string) (string, error) {
	if y.cache != nil {
		if id, ok := y.cache.GetSearch(query); ok {
			return id, nil
		}
	}

	params := url.Values{}
	params.Set("part", "id")
	params.Set("q", query)
	params.Set("maxResults", fmt.Sprintf("%d", searchMaxResults))
	params.Set("type", "video")
	params.Set("videoCategoryId", musicCategoryID)

	resp, err := y.do(ctx, http.MethodGet, "/search?"+params.Encode(), nil)
	if err != nil {
		y.logger.Debug("youtube search failed", "query", query, "error", err)
		return "", nil
	}

	if !resp.ok() {
		if isQuotaExceeded(resp) {
			return "", fmt.Errorf("%w: youtube search", shared.ErrQuotaExceeded)
		}
		y.logger.Debug("youtube search failed", "query", query, "status", resp.StatusCode)
		return "", nil
	}

	var result struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		y.logger.Debug("youtube search decode failed", "query", query, "error", err)
		return "", nil
	}

	if len(result.Items) == 0 {
		return "", nil
	}

	videoID := result.Items[0].ID.VideoID
	if y.cache != nil {
		y.cache.SetSearch(query, videoID)
	}
	return videoID, nil
}

// CreatePlaylist creates a new private playlist. The description is truncated
// to the destination's limit before submission.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, title, description string) (string, error) {
	if runes := []rune(description); len(runes) > maxDescriptionLength {
		description = string(runes[:maxDescriptionLength])
	}

	payload := map[string]any{
		"snippet": map[string]any{
			"title":       title,
			"description": description,
		},
		"status": map[string]any{
			"privacyStatus": "private",
		},
	}

	resp, err := y.do(ctx, http.MethodPost, "/playlists?part=snippet,status", payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if !resp.ok() {
		if isQuotaExceeded(resp) {
			return "", fmt.Errorf("%w: youtube playlist create", shared.ErrQuotaExceeded)
		}
		return "", fmt.Errorf("%w: youtube API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: playlist create returned no id", shared.ErrAPIRequest)
	}

	return created.ID, nil
}

// AddPlaylistItem appends a video to a playlist under the retry policy:
//
//   - 409 whose error text mentions a duplicate: the item is already present,
//     reported as [AddDuplicate] without retrying
//   - 409 otherwise and any 5xx: transient, retried with linear backoff
//   - quota exhaustion: returned immediately as an error, since every further
//     call would burn an attempt against an exhausted budget
//   - any other status: [AddFailed] immediately
//   - transport errors: treated as transient up to the retry budget
//
// Exhausted retries return [AddFailed] with a nil error.
func (y *YouTubeService) AddPlaylistItem(ctx context.Context, playlistID, contentID string) (AddResult, error) {
	payload := map[string]any{
		"snippet": map[string]any{
			"playlistId": playlistID,
			"resourceId": map[string]any{
				"kind":    "youtube#video",
				"videoId": contentID,
			},
		},
	}

	for attempt := 0; attempt < y.retry.MaxAttempts; attempt++ {
		resp, err := y.do(ctx, http.MethodPost, "/playlistItems?part=snippet", payload)
		if err != nil {
			y.logger.Debug("playlist item insert failed", "video", contentID, "attempt", attempt, "error", err)
			if y.retry.Exhausted(attempt) {
				return AddFailed, nil
			}
			y.retry.Wait(attempt)
			continue
		}

		if resp.ok() {
			return AddOK, nil
		}

		if isQuotaExceeded(resp) {
			return AddFailed, fmt.Errorf("%w: youtube playlist item insert", shared.ErrQuotaExceeded)
		}

		switch {
		case resp.StatusCode == http.StatusConflict:
			if strings.Contains(strings.ToLower(string(resp.Body)), "duplicate") {
				return AddDuplicate, nil
			}
			// SERVICE_UNAVAILABLE shows up as a 409 here
		case resp.StatusCode >= 500:
			// transient, fall through to the backoff
		default:
			y.logger.Debug("playlist item insert rejected", "video", contentID, "status", resp.StatusCode)
			return AddFailed, nil
		}

		if y.retry.Exhausted(attempt) {
			return AddFailed, nil
		}
		y.retry.Wait(attempt)
	}

	return AddFailed, nil
}
