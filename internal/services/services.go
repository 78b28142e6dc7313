// package services defines clients for the external music APIs
//
// Spotify (source catalog), YouTube Data API v3 (destination)
package services

import (
	"context"
)

// PlaylistSnapshot is the normalized, cacheable view of a source playlist:
// metadata plus the display string of every usable track.
type PlaylistSnapshot struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tracks      []string `json:"tracks"`
}

// Empty reports whether the playlist resolved to zero usable tracks.
func (p *PlaylistSnapshot) Empty() bool {
	return p == nil || len(p.Tracks) == 0
}

// SourceCatalog reads playlist metadata and track names from the source
// service (Spotify).
type SourceCatalog interface {
	// FetchPlaylist retrieves a playlist's metadata and all of its track
	// display strings, paging through the track listing.
	FetchPlaylist(ctx context.Context, playlistID string) (*PlaylistSnapshot, error)
}

// AddResult is the outcome of inserting one item into a destination playlist.
type AddResult int

const (
	// AddFailed means the item could not be inserted after exhausting retries.
	AddFailed AddResult = iota
	// AddOK means the item was inserted.
	AddOK
	// AddDuplicate means the destination reported the item already present,
	// which callers treat as success without a new insert.
	AddDuplicate
)

// Destination searches for content and writes playlists on the destination
// service (YouTube Music).
type Destination interface {
	// Search resolves a track display string to a destination content id.
	// An empty id with a nil error means no match was found. The only
	// non-nil error is quota exhaustion, which callers must not treat as
	// a plain miss.
	Search(ctx context.Context, query string) (string, error)

	// CreatePlaylist creates a new private playlist and returns its id.
	CreatePlaylist(ctx context.Context, title, description string) (string, error)

	// AddPlaylistItem appends a content id to a playlist, retrying transient
	// failures. Quota exhaustion is returned as an error; all other failures
	// are reported through the AddResult.
	AddPlaylistItem(ctx context.Context, playlistID, contentID string) (AddResult, error)
}
