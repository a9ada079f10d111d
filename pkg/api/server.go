// Package api is the HTTP surface of the letters service.
package api

import (
	"context"
	"math"
	"time"

	"github.com/1F47E/geo-letters/pkg/letters"
	"github.com/1F47E/geo-letters/pkg/media"
	"github.com/1F47E/geo-letters/pkg/models"
	"github.com/1F47E/geo-letters/pkg/query"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LetterService is the lifecycle the handlers drive.
type LetterService interface {
	Create(ctx context.Context, req letters.CreateRequest) (*models.Letter, error)
	GetByID(ctx context.Context, id string) (*models.Letter, error)
	Delete(ctx context.Context, id string) (*models.Letter, error)
}

// NearbyFinder answers proximity queries.
type NearbyFinder interface {
	Nearby(ctx context.Context, p query.Params) (query.Result, error)
}

// Presigner hands out temporary URLs for stored media.
type Presigner interface {
	PresignURL(ctx context.Context, key string) (string, error)
}

// Options configures the server.
type Options struct {
	Production      bool
	RateLimitPerMin int
	Limits          media.Limits

	// UploadsDir is served under /uploads when set.
	UploadsDir string
	// Presigner redirects /uploads/:key when UploadsDir is empty.
	Presigner Presigner
}

// Server wraps the fiber app.
type Server struct {
	app     *fiber.App
	limiter *IPRateLimiter
	log     *zap.Logger
}

// New builds the app and registers routes.
func New(svc LetterService, finder NearbyFinder, opts Options, logger *zap.Logger) *Server {
	log := logger.With(zap.String("component", "api"))

	app := fiber.New(fiber.Config{
		AppName:               "geo-letters",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             bodyLimit(opts.Limits),
		ErrorHandler:          errorHandler(opts.Production, log),
		DisableStartupMessage: true,
	})

	s := &Server{app: app, log: log}
	app.Use(requestLogger(log))
	if opts.RateLimitPerMin > 0 {
		s.limiter = NewIPRateLimiter(opts.RateLimitPerMin, log)
		app.Use(s.limiter.Handler())
	}

	h := &handler{svc: svc, finder: finder}
	api := app.Group("/api/letters")
	api.Post("/", h.createLetter)
	api.Get("/nearby", h.nearbyLetters)
	api.Get("/:id", h.getLetter)
	api.Delete("/:id", h.deleteLetter)

	switch {
	case opts.UploadsDir != "":
		app.Static(media.PublicPath, opts.UploadsDir)
	case opts.Presigner != nil:
		app.Get(media.PublicPath+"/:key", presignRedirect(opts.Presigner))
	}

	app.Get("/health", health)

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.app.ShutdownWithContext(ctx)
}

func health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true, "timestamp": time.Now().UnixMilli()})
}

func presignRedirect(p Presigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url, err := p.PresignURL(c.UserContext(), c.Params("key"))
		if err != nil {
			return err
		}
		return c.Redirect(url, fiber.StatusTemporaryRedirect)
	}
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// write the error response here so the logged status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}
}

// bodyLimit leaves room for a full set of uploads plus form fields.
func bodyLimit(l media.Limits) int {
	if l.MaxFiles <= 0 || l.MaxFileSize <= 0 {
		l = media.DefaultLimits()
	}
	limit := int64(l.MaxFiles)*l.MaxFileSize + 1<<20
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(limit)
}
