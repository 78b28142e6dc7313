package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"spottransfer/internal/cache"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
)

type fakeSource struct {
	snapshot *services.PlaylistSnapshot
	err      error
	calls    int
}

func (f *fakeSource) FetchPlaylist(ctx context.Context, id string) (*services.PlaylistSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

// fakeDest scripts per-track behavior: searches resolve through the results
// map (missing key means not found) and adds consume the adds queue.
type fakeDest struct {
	results    map[string]string
	searchErr  map[string]error
	adds       map[string]services.AddResult
	addErr     map[string]error
	created    []string
	createErr  error
	addedItems []string
}

func (f *fakeDest) Search(ctx context.Context, query string) (string, error) {
	if err := f.searchErr[query]; err != nil {
		return "", err
	}
	return f.results[query], nil
}

func (f *fakeDest) CreatePlaylist(ctx context.Context, title, description string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, title)
	return "PL-new", nil
}

func (f *fakeDest) AddPlaylistItem(ctx context.Context, playlistID, contentID string) (services.AddResult, error) {
	if err := f.addErr[contentID]; err != nil {
		return services.AddFailed, err
	}
	f.addedItems = append(f.addedItems, contentID)
	if result, ok := f.adds[contentID]; ok {
		return result, nil
	}
	return services.AddOK, nil
}

type mapStorage struct {
	data map[string][]byte
}

func newMapStorage() *mapStorage {
	return &mapStorage{data: map[string][]byte{}}
}

func (m *mapStorage) Get(key string) ([]byte, error) { return m.data[key], nil }

func (m *mapStorage) Set(key string, val []byte, exp time.Duration) error {
	m.data[key] = val
	return nil
}

func (m *mapStorage) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func (m *mapStorage) Reset() error {
	m.data = map[string][]byte{}
	return nil
}

func (m *mapStorage) Close() error { return nil }

const testURL = "https://open.spotify.com/playlist/abc123"

func TestEngineRun(t *testing.T) {
	t.Run("transfers every track", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{
			Name:        "Mix",
			Description: "desc",
			Tracks:      []string{"Song A - X", "Song B - Y"},
		}}
		dest := &fakeDest{results: map[string]string{
			"Song A - X": "vid-a",
			"Song B - Y": "vid-b",
		}}

		engine := NewEngine(source, dest, nil, nil)
		result, err := engine.Run(context.Background(), testURL)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.PlaylistID != "PL-new" || result.PlaylistName != "Mix" {
			t.Errorf("unexpected result header %+v", result)
		}
		if result.TotalTracks != 2 || len(result.Tracks) != 2 {
			t.Fatalf("expected 2 track outcomes, got %+v", result)
		}
		for _, track := range result.Tracks {
			if track.Status != StatusAdded {
				t.Errorf("expected %q added, got %s", track.Name, track.Status)
			}
		}
		if len(dest.addedItems) != 2 {
			t.Errorf("expected 2 destination inserts, got %v", dest.addedItems)
		}
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{
			Name:   "Mix",
			Tracks: []string{"found", "missing", "dupe"},
		}}
		dest := &fakeDest{
			results: map[string]string{"found": "vid-1", "dupe": "vid-2"},
			adds:    map[string]services.AddResult{"vid-2": services.AddDuplicate},
		}

		engine := NewEngine(source, dest, nil, nil)
		result, err := engine.Run(context.Background(), testURL)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		want := []TrackStatus{StatusAdded, StatusNotFound, StatusDuplicate}
		for i, track := range result.Tracks {
			if track.Status != want[i] {
				t.Errorf("track %d: expected %s, got %s", i, want[i], track.Status)
			}
		}
		if result.Count(StatusAdded) != 1 || result.Count(StatusNotFound) != 1 || result.Count(StatusDuplicate) != 1 {
			t.Errorf("unexpected counts in %+v", result.Tracks)
		}
	})

	t.Run("quota mid-run marks remaining tracks and stops", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{
			Name:   "Mix",
			Tracks: []string{"one", "two", "three", "four"},
		}}
		quotaErr := fmt.Errorf("%w: insert", shared.ErrQuotaExceeded)
		dest := &fakeDest{
			results: map[string]string{"one": "vid-1", "two": "vid-2", "three": "vid-3", "four": "vid-4"},
			addErr:  map[string]error{"vid-3": quotaErr},
		}

		engine := NewEngine(source, dest, nil, nil)
		result, err := engine.Run(context.Background(), testURL)
		if err != nil {
			t.Fatalf("expected quota to be reported in the result, got %v", err)
		}

		if !result.QuotaExceeded {
			t.Error("expected quota flag")
		}
		want := []TrackStatus{StatusAdded, StatusAdded, StatusQuotaExceeded, StatusQuotaExceeded}
		if len(result.Tracks) != len(want) {
			t.Fatalf("expected %d outcomes, got %d", len(want), len(result.Tracks))
		}
		for i, track := range result.Tracks {
			if track.Status != want[i] {
				t.Errorf("track %d: expected %s, got %s", i, want[i], track.Status)
			}
		}
		if len(dest.addedItems) != 2 {
			t.Errorf("expected no inserts after quota, got %v", dest.addedItems)
		}
	})

	t.Run("quota during search aborts the same way", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{
			Name:   "Mix",
			Tracks: []string{"one", "two"},
		}}
		dest := &fakeDest{
			results:   map[string]string{"one": "vid-1"},
			searchErr: map[string]error{"two": fmt.Errorf("%w: search", shared.ErrQuotaExceeded)},
		}

		engine := NewEngine(source, dest, nil, nil)
		result, err := engine.Run(context.Background(), testURL)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.QuotaExceeded || result.Tracks[1].Status != StatusQuotaExceeded {
			t.Errorf("expected second track marked quota-exceeded, got %+v", result.Tracks)
		}
	})

	t.Run("empty playlist rejected before playlist creation", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{Name: "Empty"}}
		dest := &fakeDest{}

		engine := NewEngine(source, dest, nil, nil)
		if _, err := engine.Run(context.Background(), testURL); !errors.Is(err, shared.ErrEmptyPlaylist) {
			t.Fatalf("expected ErrEmptyPlaylist, got %v", err)
		}
		if len(dest.created) != 0 {
			t.Error("expected no destination playlist for an empty source")
		}
	})

	t.Run("invalid URL rejected before any calls", func(t *testing.T) {
		source := &fakeSource{}
		dest := &fakeDest{}

		engine := NewEngine(source, dest, nil, nil)
		if _, err := engine.Run(context.Background(), "https://example.com/playlist/abc"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if source.calls != 0 || len(dest.created) != 0 {
			t.Error("expected validation to fail before any service calls")
		}
	})

	t.Run("playlist create failure propagates", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{Name: "Mix", Tracks: []string{"t"}}}
		dest := &fakeDest{createErr: fmt.Errorf("%w: create", shared.ErrQuotaExceeded)}

		engine := NewEngine(source, dest, nil, nil)
		if _, err := engine.Run(context.Background(), testURL); !errors.Is(err, shared.ErrQuotaExceeded) {
			t.Fatalf("expected quota error from create, got %v", err)
		}
	})
}

func TestResolvePlaylist(t *testing.T) {
	t.Run("cold fetch writes through to the cache", func(t *testing.T) {
		source := &fakeSource{snapshot: &services.PlaylistSnapshot{Name: "Mix", Tracks: []string{"t"}}}
		c := cache.New(newMapStorage(), "", time.Hour, nil)

		engine := NewEngine(source, &fakeDest{}, c, nil)
		if _, err := engine.ResolvePlaylist(context.Background(), testURL); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if source.calls != 1 {
			t.Fatalf("expected one source fetch, got %d", source.calls)
		}

		var cached services.PlaylistSnapshot
		if !c.GetPlaylist("abc123", &cached) || cached.Name != "Mix" {
			t.Errorf("expected snapshot in cache, got %+v", cached)
		}
	})

	t.Run("warm cache skips the source", func(t *testing.T) {
		c := cache.New(newMapStorage(), "", time.Hour, nil)
		c.SetPlaylist("abc123", &services.PlaylistSnapshot{Name: "Warm", Tracks: []string{"t"}})

		source := &fakeSource{err: errors.New("source should not be called")}
		engine := NewEngine(source, &fakeDest{}, c, nil)

		snapshot, err := engine.ResolvePlaylist(context.Background(), testURL)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if snapshot.Name != "Warm" {
			t.Errorf("expected cached snapshot, got %+v", snapshot)
		}
		if source.calls != 0 {
			t.Error("expected cache hit to skip the source fetch")
		}
	})

	t.Run("source errors propagate", func(t *testing.T) {
		source := &fakeSource{err: fmt.Errorf("%w: gone", shared.ErrPlaylistNotFound)}
		engine := NewEngine(source, &fakeDest{}, nil, nil)

		if _, err := engine.ResolvePlaylist(context.Background(), testURL); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Fatalf("expected ErrPlaylistNotFound, got %v", err)
		}
	})
}

func TestTransferTrack(t *testing.T) {
	t.Run("added", func(t *testing.T) {
		dest := &fakeDest{results: map[string]string{"Song - X": "vid-1"}}
		engine := NewEngine(&fakeSource{}, dest, nil, nil)

		result, err := engine.TransferTrack(context.Background(), "Song - X", "PL123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Success || !result.Found || result.QuotaExceeded {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("duplicate counts as success", func(t *testing.T) {
		dest := &fakeDest{
			results: map[string]string{"Song - X": "vid-1"},
			adds:    map[string]services.AddResult{"vid-1": services.AddDuplicate},
		}
		engine := NewEngine(&fakeSource{}, dest, nil, nil)

		result, err := engine.TransferTrack(context.Background(), "Song - X", "PL123")
		if err != nil || !result.Success {
			t.Errorf("expected duplicate to report success, got %+v / %v", result, err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		engine := NewEngine(&fakeSource{}, &fakeDest{}, nil, nil)

		result, err := engine.TransferTrack(context.Background(), "Unknown", "PL123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Success || result.Found {
			t.Errorf("expected a miss, got %+v", result)
		}
	})

	t.Run("quota reported through the result", func(t *testing.T) {
		dest := &fakeDest{
			results: map[string]string{"Song - X": "vid-1"},
			addErr:  map[string]error{"vid-1": fmt.Errorf("%w: insert", shared.ErrQuotaExceeded)},
		}
		engine := NewEngine(&fakeSource{}, dest, nil, nil)

		result, err := engine.TransferTrack(context.Background(), "Song - X", "PL123")
		if err != nil {
			t.Fatalf("expected quota in the result, got error %v", err)
		}
		if !result.QuotaExceeded || result.Success {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("failed insert", func(t *testing.T) {
		dest := &fakeDest{
			results: map[string]string{"Song - X": "vid-1"},
			adds:    map[string]services.AddResult{"vid-1": services.AddFailed},
		}
		engine := NewEngine(&fakeSource{}, dest, nil, nil)

		result, err := engine.TransferTrack(context.Background(), "Song - X", "PL123")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Success || !result.Found {
			t.Errorf("expected found-but-failed, got %+v", result)
		}
	})
}
