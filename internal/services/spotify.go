// Spotify API implementation of [SourceCatalog]
//
// Uses the client-credentials grant: reading public playlists needs no user
// login, only application credentials.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"spottransfer/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// trackPageLimit is the page size for the playlist track listing.
	trackPageLimit = 100

	// maxPlaylistURLLength bounds user-supplied URLs before pattern matching.
	maxPlaylistURLLength = 500
)

var playlistURLPattern = regexp.MustCompile(`^https://open\.spotify\.com/playlist/([A-Za-z0-9]+)(\?.*)?$`)

// ParsePlaylistID validates a playlist URL against the strict pattern and
// extracts the playlist id. No network calls are made; every rejection is an
// [shared.ErrInvalidInput].
func ParsePlaylistID(playlistURL string) (string, error) {
	playlistURL = strings.TrimSpace(playlistURL)
	if playlistURL == "" {
		return "", fmt.Errorf("%w: playlist URL is required", shared.ErrInvalidInput)
	}
	if len(playlistURL) > maxPlaylistURLLength {
		return "", fmt.Errorf("%w: playlist URL is too long", shared.ErrInvalidInput)
	}

	match := playlistURLPattern.FindStringSubmatch(playlistURL)
	if match == nil {
		return "", fmt.Errorf("%w: invalid Spotify playlist URL", shared.ErrInvalidInput)
	}

	return match[1], nil
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
}

type spotifyPlaylistItem struct {
	Track *spotifyTrack `json:"track"`
}

type spotifyTrackPage struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifyPlaylistMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SpotifyService implements [SourceCatalog] against the Spotify Web API.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify client authenticating with the
// client-credentials grant. Token acquisition and refresh are handled by the
// [clientcredentials] transport.
func NewSpotifyService(cfg shared.SpotifyConfig) (*SpotifyService, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyTokenURL,
	}

	return &SpotifyService{
		baseURL:    spotifyBaseURL,
		httpClient: cc.Client(context.Background()),
	}, nil
}

// doRequest performs an authenticated GET against the Spotify API and decodes
// the response, mapping error statuses onto the shared taxonomy in one place.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: Spotify playlist not found, please check the URL", shared.ErrPlaylistNotFound)
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: Spotify authentication failed, please check API credentials", shared.ErrAuthFailed)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: access to this Spotify playlist is forbidden", shared.ErrForbidden)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// FetchPlaylist retrieves playlist metadata once, then pages through the
// track listing until the API stops signaling a next page.
//
// Entries with a null track or empty title are skipped. A playlist with zero
// usable tracks returns a snapshot with an empty track list, not an error.
func (s *SpotifyService) FetchPlaylist(ctx context.Context, playlistID string) (*PlaylistSnapshot, error) {
	var meta spotifyPlaylistMeta
	endpoint := fmt.Sprintf("/playlists/%s?fields=name,description", playlistID)
	if err := s.doRequest(ctx, endpoint, &meta); err != nil {
		return nil, err
	}

	snapshot := &PlaylistSnapshot{Name: meta.Name, Description: meta.Description}

	offset := 0
	for {
		var page spotifyTrackPage
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", playlistID, trackPageLimit, offset)
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if name, ok := formatTrack(item); ok {
				snapshot.Tracks = append(snapshot.Tracks, name)
			}
		}

		if page.Next == nil {
			break
		}
		offset += trackPageLimit
	}

	return snapshot, nil
}

// formatTrack renders a playlist entry as "Title - Artist1, Artist2" with the
// artists comma-joined in their returned order. Entries with a null track or
// empty title are dropped.
func formatTrack(item spotifyPlaylistItem) (string, bool) {
	if item.Track == nil || item.Track.Name == "" {
		return "", false
	}

	names := make([]string, len(item.Track.Artists))
	for i, artist := range item.Track.Artists {
		names[i] = artist.Name
	}

	return fmt.Sprintf("%s - %s", item.Track.Name, strings.Join(names, ", ")), true
}
