package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"spottransfer/internal/cache"
	"spottransfer/internal/repositories"
	"spottransfer/internal/server"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
)

// Serve starts the HTTP transfer service and blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String("config"); path != "" {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return err
		}
		r.config = config
	}
	if port := cmd.Int("port"); port != 0 {
		r.config.Server.Port = int(port)
	}

	source, err := services.NewSpotifyService(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	storage := cache.NewStorage(r.config.Cache)
	playlistCache := cache.New(storage, r.config.Cache.Prefix,
		time.Duration(r.config.Cache.TTLSeconds)*time.Second, r.logger)

	var transfers *repositories.TransferRepository
	if db, err := shared.NewDatabase(r.config.Database.Path); err != nil {
		r.logger.Warn("history database unavailable", "error", err)
	} else {
		transfers = repositories.NewTransferRepository(db)
		if err := transfers.Migrate(); err != nil {
			r.logger.Warn("history migration failed", "error", err)
			transfers = nil
		}
		defer db.Close()
	}

	srv := server.New(server.Options{
		Config:    r.config,
		Logger:    r.logger,
		Storage:   storage,
		Cache:     playlistCache,
		Source:    source,
		Transfers: transfers,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		r.logger.Info("shutting down")
		return srv.Shutdown()
	}
}
