package server

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"spottransfer/internal/metrics"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
	"spottransfer/internal/tasks"
)

const quotaMessage = "YouTube API quota exceeded. The quota resets daily " +
	"at midnight Pacific Time. Please try again later."

type transferRequest struct {
	PlaylistURL string `json:"playlist_url" validate:"required,max=500"`
}

type transferTrackRequest struct {
	TrackName  string `json:"track_name" validate:"required,max=300"`
	PlaylistID string `json:"playlist_id" validate:"required,max=100"`
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// validationMessage translates the first failed field into the message the
// frontend displays.
func validationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "Invalid request format"
	}
	fe := fields[0]
	switch fe.Field() {
	case "PlaylistURL":
		if fe.Tag() == "max" {
			return "Playlist URL is too long"
		}
		return "Please provide a Spotify playlist URL"
	case "TrackName":
		if fe.Tag() == "max" {
			return "Track name is too long"
		}
		return "Track name is required"
	case "PlaylistID":
		return "Playlist ID is required"
	default:
		return "Invalid request format"
	}
}

// transferError maps orchestrator failures onto the JSON error contract.
func (s *Server) transferError(c *fiber.Ctx, err error) error {
	status := shared.HTTPStatus(err)
	switch {
	case errors.Is(err, shared.ErrQuotaExceeded):
		return jsonError(c, status, quotaMessage)
	case errors.Is(err, shared.ErrNotAuthenticated):
		return jsonError(c, status, "Not authenticated. Please connect your YouTube account.")
	case errors.Is(err, shared.ErrSessionCorrupted):
		return jsonError(c, status, "Session corrupted. Please clear your browser cookies and try again.")
	case errors.Is(err, shared.ErrAuthFailed):
		return jsonError(c, status, "Authentication failed. Please reconnect your YouTube account.")
	case status == fiber.StatusBadRequest:
		return jsonError(c, status, userMessage(err))
	default:
		s.logger.Error("transfer failed", "error", err)
		return jsonError(c, status, "An unexpected error occurred. Please try again.")
	}
}

// userMessage strips the sentinel prefix so "invalid input: Playlist URL ..."
// reads as the frontend-facing message alone.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{shared.ErrInvalidInput, shared.ErrEmptyPlaylist, shared.ErrPlaylistNotFound, shared.ErrForbidden} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// handleIndex reports whether the session holds destination credentials.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	_, err := s.credentials(c)
	return c.JSON(fiber.Map{"authenticated": err == nil})
}

// handleTransfer runs a whole-playlist transfer and returns the per-track
// outcome list.
func (s *Server) handleTransfer(c *fiber.Ctx) error {
	creds, err := s.credentials(c)
	if err != nil {
		return s.transferError(c, err)
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	req.PlaylistURL = strings.TrimSpace(req.PlaylistURL)
	if err := s.validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, validationMessage(err))
	}

	ctx := c.UserContext()
	engine := tasks.NewEngine(s.source, s.destFactory(ctx, creds), s.cache, s.logger)

	result, err := engine.Run(ctx, req.PlaylistURL)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("error").Inc()
		return s.transferError(c, err)
	}

	s.recordTransfer(req.PlaylistURL, result)
	if result.QuotaExceeded {
		metrics.TransfersTotal.WithLabelValues("quota_exceeded").Inc()
	} else {
		metrics.TransfersTotal.WithLabelValues("completed").Inc()
	}
	for _, track := range result.Tracks {
		metrics.TracksTotal.WithLabelValues(string(track.Status)).Inc()
	}

	return c.JSON(result)
}

// handleTransferTrack searches for one track and adds it to an existing
// destination playlist. The browser drives one call per track when it runs
// the transfer loop itself.
func (s *Server) handleTransferTrack(c *fiber.Ctx) error {
	creds, err := s.credentials(c)
	if err != nil {
		return s.transferError(c, err)
	}

	var req transferTrackRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request format")
	}
	req.TrackName = strings.TrimSpace(req.TrackName)
	req.PlaylistID = strings.TrimSpace(req.PlaylistID)
	if err := s.validate.Struct(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, validationMessage(err))
	}

	ctx := c.UserContext()
	engine := tasks.NewEngine(s.source, s.destFactory(ctx, creds), s.cache, s.logger)

	result, err := engine.TransferTrack(ctx, req.TrackName, req.PlaylistID)
	if err != nil {
		s.logger.Error("track transfer failed", "track", req.TrackName, "error", err)
		return c.JSON(fiber.Map{"success": false, "found": false,
			"error": "An unexpected error occurred. Please try again."})
	}

	if result.QuotaExceeded {
		metrics.TracksTotal.WithLabelValues(string(tasks.StatusQuotaExceeded)).Inc()
		return c.JSON(fiber.Map{
			"success":        false,
			"found":          result.Found,
			"quota_exceeded": true,
			"error":          quotaMessage,
		})
	}

	switch {
	case result.Success:
		metrics.TracksTotal.WithLabelValues(string(tasks.StatusAdded)).Inc()
	case !result.Found:
		metrics.TracksTotal.WithLabelValues(string(tasks.StatusNotFound)).Inc()
	default:
		metrics.TracksTotal.WithLabelValues(string(tasks.StatusFailed)).Inc()
	}
	return c.JSON(result)
}

// recordTransfer appends the run to the history store. Failures are logged
// and otherwise ignored; history is advisory.
func (s *Server) recordTransfer(playlistURL string, result *tasks.TransferResult) {
	if s.transfers == nil {
		return
	}
	sourceID, err := services.ParsePlaylistID(playlistURL)
	if err != nil {
		return
	}
	if _, err := s.transfers.Record(sourceID, result); err != nil {
		s.logger.Warn("failed to record transfer history", "error", err)
	}
}
