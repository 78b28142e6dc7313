package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"spottransfer/internal/cache"
	"spottransfer/internal/metrics"
	"spottransfer/internal/repositories"
	"spottransfer/internal/services"
	"spottransfer/internal/shared"
)

// DestinationFactory builds a destination client bound to the credentials of
// the current request. Tests substitute a factory returning fakes.
type DestinationFactory func(ctx context.Context, creds *Credentials) services.Destination

// Options collects the dependencies a Server needs. Zero fields are filled
// with production defaults where possible.
type Options struct {
	Config      *shared.Config
	Logger      *log.Logger
	Storage     fiber.Storage
	Cache       *cache.Cache
	Source      services.SourceCatalog
	DestFactory DestinationFactory
	Transfers   *repositories.TransferRepository
}

// Server is the HTTP surface of the transfer service.
type Server struct {
	app         *fiber.App
	config      *shared.Config
	logger      *log.Logger
	cache       *cache.Cache
	sessions    *session.Store
	source      services.SourceCatalog
	destFactory DestinationFactory
	transfers   *repositories.TransferRepository
	oauth       *oauth2.Config
	validate    *validator.Validate
}

// New assembles the fiber application, session store, and routes.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}

	storage := opts.Storage
	if storage == nil {
		storage = cache.NewStorage(cfg.Cache)
	}

	c := opts.Cache
	if c == nil {
		c = cache.New(storage, cfg.Cache.Prefix,
			time.Duration(cfg.Cache.TTLSeconds)*time.Second, opts.Logger)
	}

	s := &Server{
		config:      cfg,
		logger:      opts.Logger,
		cache:       c,
		source:      opts.Source,
		destFactory: opts.DestFactory,
		transfers:   opts.Transfers,
		validate:    validator.New(),
		oauth: &oauth2.Config{
			ClientID:     cfg.Credentials.Google.ClientID,
			ClientSecret: cfg.Credentials.Google.ClientSecret,
			RedirectURL:  cfg.Credentials.Google.RedirectURI,
			Scopes:       []string{youtubeScope},
			Endpoint:     google.Endpoint,
		},
	}

	if s.destFactory == nil {
		s.destFactory = func(ctx context.Context, creds *Credentials) services.Destination {
			return services.NewYouTubeService(creds.Client(ctx), s.cache, s.logger)
		}
	}

	s.sessions = session.New(session.Config{
		Storage:        storage,
		Expiration:     time.Duration(cfg.Server.SessionHours) * time.Hour,
		KeyLookup:      "cookie:" + SessionCookie,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	s.app = fiber.New(fiber.Config{
		AppName:               "spottransfer",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowHeaders: "Content-Type"}))
	s.app.Use(s.requestLogger)
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/authorize", s.handleAuthorize)
	s.app.Get("/oauth2callback", s.handleOAuthCallback)
	s.app.Post("/complete_auth", s.handleCompleteAuth)
	s.app.Get("/disconnect", s.rateLimit(10, time.Minute), s.handleDisconnect)
	s.app.Post("/transfer", s.rateLimit(5, time.Hour), s.handleTransfer)
	s.app.Post("/transfer_track", s.rateLimit(30, time.Minute), s.handleTransferTrack)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

// rateLimit builds a sliding-window per-IP limiter for one route.
func (s *Server) rateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusTooManyRequests,
				"Rate limit exceeded. Please try again later.")
		},
	})
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"ip", c.IP(),
	)
	return err
}

// errorHandler is the fiber fallback for errors no handler mapped itself.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return jsonError(c, code, "An unexpected error occurred. Please try again.")
	}
	return jsonError(c, code, err.Error())
}

// App exposes the fiber application for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the listener fails or the app is shut down.
func (s *Server) Listen() error {
	s.logger.Info("listening", "addr", s.config.Server.Addr())
	return s.app.Listen(s.config.Server.Addr())
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
