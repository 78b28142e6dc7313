package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"spottransfer/internal/cache"
	"spottransfer/internal/repositories"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
	"spottransfer/internal/tasks"
)

// Transfer runs a one-shot playlist transfer using a locally stored
// YouTube OAuth token instead of a browser session.
func (r *Runner) Transfer(ctx context.Context, cmd *cli.Command) error {
	playlistURL := cmd.String("url")
	tokenPath := cmd.String("token-file")

	token, err := loadToken(tokenPath)
	if err != nil {
		return err
	}

	source, err := services.NewSpotifyService(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	storage := cache.NewStorage(r.config.Cache)
	playlistCache := cache.New(storage, r.config.Cache.Prefix,
		time.Duration(r.config.Cache.TTLSeconds)*time.Second, r.logger)

	conf := &oauth2.Config{
		ClientID:     r.config.Credentials.Google.ClientID,
		ClientSecret: r.config.Credentials.Google.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	dest := services.NewYouTubeService(conf.Client(ctx, token), playlistCache, r.logger)

	engine := tasks.NewEngine(source, dest, playlistCache, r.logger)

	r.writePlain("Starting playlist transfer...\n")
	result, err := engine.Run(ctx, playlistURL)
	if err != nil {
		return err
	}
	r.recordTransfer(playlistURL, result)

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlainHeader("Transfer Complete")
	r.writePlain("Playlist: %s\n", result.PlaylistName)
	r.writePlain("Tracks: %d total\n", result.TotalTracks)
	r.writePlain("  added:           %d\n", result.Count(tasks.StatusAdded))
	r.writePlain("  duplicates:      %d\n", result.Count(tasks.StatusDuplicate))
	r.writePlain("  not found:       %d\n", result.Count(tasks.StatusNotFound))
	r.writePlain("  failed:          %d\n", result.Count(tasks.StatusFailed))
	if result.QuotaExceeded {
		r.writePlain("  quota exceeded:  %d\n", result.Count(tasks.StatusQuotaExceeded))
		r.writePlain("\nYouTube API quota ran out before the transfer finished.\n")
	}

	return nil
}

// Setup writes a starter config file and initializes the history database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.writePlain("Wrote %s\n", path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewTransferRepository(db).Migrate(); err != nil {
		return err
	}
	r.writePlain("Initialized history database at %s\n", r.config.Database.Path)

	return nil
}

// CacheClear drops every cached playlist, search result, and handshake entry.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	storage := cache.NewStorage(r.config.Cache)
	playlistCache := cache.New(storage, r.config.Cache.Prefix,
		time.Duration(r.config.Cache.TTLSeconds)*time.Second, r.logger)

	if err := playlistCache.Reset(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	r.writePlain("Cache cleared\n")
	return nil
}

// History lists past transfers, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := repositories.NewTransferRepository(db).List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		r.writePlain("No transfers recorded\n")
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-30s  %d tracks (%d added, %d not found, %d failed)",
			rec.CreatedAt.Format(time.DateTime), rec.SourceName,
			rec.TotalTracks, rec.AddedTracks, rec.NotFoundTracks, rec.FailedTracks)
		if rec.QuotaExceeded {
			line += "  [quota exceeded]"
		}
		r.writePlain("%s\n", line)
	}

	return nil
}

// recordTransfer appends the run to the history store when the database is
// reachable; history is advisory and never fails the transfer.
func (r *Runner) recordTransfer(playlistURL string, result *tasks.TransferResult) {
	sourceID, err := services.ParsePlaylistID(playlistURL)
	if err != nil {
		return
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		r.logger.Warn("history database unavailable", "error", err)
		return
	}
	defer db.Close()

	repo := repositories.NewTransferRepository(db)
	if err := repo.Migrate(); err != nil {
		r.logger.Warn("history migration failed", "error", err)
		return
	}
	if _, err := repo.Record(sourceID, result); err != nil {
		r.logger.Warn("failed to record transfer history", "error", err)
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read token file %s: %v", shared.ErrMissingCredentials, path, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed token file %s: %v", shared.ErrMissingCredentials, path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token file %s has no usable token", shared.ErrMissingCredentials, path)
	}

	return &token, nil
}
