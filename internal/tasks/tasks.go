// package tasks implements the playlist transfer pipeline between the source
// catalog and the destination service.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"spottransfer/internal/cache"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
)

// TrackStatus is the per-track outcome of a transfer.
type TrackStatus string

const (
	StatusAdded         TrackStatus = "added"
	StatusNotFound      TrackStatus = "not-found"
	StatusDuplicate     TrackStatus = "duplicate-skip"
	StatusFailed        TrackStatus = "failed"
	StatusQuotaExceeded TrackStatus = "quota-exceeded"
)

// TrackOutcome pairs a track display string with what happened to it.
type TrackOutcome struct {
	Name   string      `json:"name"`
	Status TrackStatus `json:"status"`
}

// TransferResult aggregates one full playlist transfer.
type TransferResult struct {
	PlaylistID    string         `json:"playlist_id"`
	PlaylistName  string         `json:"playlist_name"`
	TotalTracks   int            `json:"total_tracks"`
	Tracks        []TrackOutcome `json:"tracks"`
	QuotaExceeded bool           `json:"quota_exceeded,omitempty"`
}

// Count returns how many tracks finished with the given status.
func (r *TransferResult) Count(status TrackStatus) int {
	n := 0
	for _, t := range r.Tracks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// TrackResult is the outcome of a single-track transfer.
type TrackResult struct {
	Success       bool `json:"success"`
	Found         bool `json:"found"`
	QuotaExceeded bool `json:"quota_exceeded,omitempty"`
}

// Engine drives the end-to-end transfer flow: resolve the source playlist
// (through the cache), create the destination playlist, then push tracks one
// by one. The per-track loop is strictly sequential; a quota-exceeded signal
// from the destination aborts the remaining tracks, since every further call
// would fail the same way.
type Engine struct {
	source services.SourceCatalog
	dest   services.Destination
	cache  *cache.Cache
	logger *log.Logger
}

// NewEngine creates an Engine. The cache is optional.
func NewEngine(source services.SourceCatalog, dest services.Destination, c *cache.Cache, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{source: source, dest: dest, cache: c, logger: logger}
}

// ResolvePlaylist validates the playlist URL and returns the snapshot, from
// cache when warm, with a write-through on a cold fetch.
//
// An empty playlist is reported as [shared.ErrEmptyPlaylist].
func (e *Engine) ResolvePlaylist(ctx context.Context, playlistURL string) (*services.PlaylistSnapshot, error) {
	id, err := services.ParsePlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	snapshot := &services.PlaylistSnapshot{}
	if e.cache != nil && e.cache.GetPlaylist(id, snapshot) {
		e.logger.Debug("playlist cache hit", "playlist", id)
	} else {
		snapshot, err = e.source.FetchPlaylist(ctx, id)
		if err != nil {
			return nil, err
		}
		if !snapshot.Empty() && e.cache != nil {
			e.cache.SetPlaylist(id, snapshot)
		}
	}

	if snapshot.Empty() {
		return nil, shared.ErrEmptyPlaylist
	}
	return snapshot, nil
}

// Run performs a full transfer for the given source playlist URL.
func (e *Engine) Run(ctx context.Context, playlistURL string) (*TransferResult, error) {
	snapshot, err := e.ResolvePlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Transferred from Spotify\n\n%s", snapshot.Description)
	destID, err := e.dest.CreatePlaylist(ctx, snapshot.Name, description)
	if err != nil {
		return nil, err
	}

	e.logger.Info("destination playlist created", "playlist", destID, "name", snapshot.Name, "tracks", len(snapshot.Tracks))

	result := &TransferResult{
		PlaylistID:   destID,
		PlaylistName: snapshot.Name,
		TotalTracks:  len(snapshot.Tracks),
		Tracks:       make([]TrackOutcome, 0, len(snapshot.Tracks)),
	}

	for i, name := range snapshot.Tracks {
		status, err := e.transferOne(ctx, destID, name)
		if errors.Is(err, shared.ErrQuotaExceeded) {
			e.logger.Warn("quota exhausted, aborting remaining tracks", "processed", i, "remaining", len(snapshot.Tracks)-i)
			result.QuotaExceeded = true
			for _, rest := range snapshot.Tracks[i:] {
				result.Tracks = append(result.Tracks, TrackOutcome{Name: rest, Status: StatusQuotaExceeded})
			}
			break
		}
		if err != nil {
			return nil, err
		}
		result.Tracks = append(result.Tracks, TrackOutcome{Name: name, Status: status})
	}

	return result, nil
}

// TransferTrack pushes a single caller-supplied track into an existing
// destination playlist. Quota exhaustion is reported through the result, not
// as an error, so callers driving a track-by-track loop can stop cleanly.
func (e *Engine) TransferTrack(ctx context.Context, trackName, playlistID string) (*TrackResult, error) {
	status, err := e.transferOne(ctx, playlistID, trackName)
	if errors.Is(err, shared.ErrQuotaExceeded) {
		return &TrackResult{QuotaExceeded: true}, nil
	}
	if err != nil {
		return nil, err
	}

	return &TrackResult{
		Success: status == StatusAdded || status == StatusDuplicate,
		Found:   status != StatusNotFound,
	}, nil
}

// transferOne searches for one track and, when found, appends it to the
// destination playlist. Only quota exhaustion is returned as an error.
func (e *Engine) transferOne(ctx context.Context, playlistID, name string) (TrackStatus, error) {
	videoID, err := e.dest.Search(ctx, name)
	if err != nil {
		return StatusFailed, err
	}
	if videoID == "" {
		return StatusNotFound, nil
	}

	added, err := e.dest.AddPlaylistItem(ctx, playlistID, videoID)
	if err != nil {
		return StatusFailed, err
	}

	switch added {
	case services.AddOK:
		return StatusAdded, nil
	case services.AddDuplicate:
		return StatusDuplicate, nil
	default:
		return StatusFailed, nil
	}
}
