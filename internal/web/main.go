// Package web serves the role mapping API over HTTP.
package web

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	fiberlogger "github.com/GoPowerDNS-Admin/rolesync/internal/logger/adapter/fiber"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler/mappers"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler/roles"
)

const (
	// MetricsPath serves the prometheus metrics.
	MetricsPath = "/metrics"

	appName = "rolesync"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
}

// Start listens on addr and blocks until the server stops.
func (s *Service) Start(addr string) error {
	s.alive.Store(true)

	err := s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err //nolint:wrapcheck
	}

	return nil
}

// Shutdown stops the server. Unless fast shutdown is set, checkalive answers
// 503 for ShutDownTime seconds first so load balancers drain this instance.
func (s *Service) Shutdown() error {
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	log.Info().Msg("stopping http server ...")

	if err := s.App.Shutdown(); err != nil {
		return err //nolint:wrapcheck
	}

	log.Info().Msg("http server was stopped ... good bye...")

	return nil
}

// CheckAlive answers liveness probes.
func (s *Service) CheckAlive(c fiber.Ctx) error {
	if !s.alive.Load() {
		return c.Status(fiber.StatusServiceUnavailable).SendString("shutting down")
	}

	return c.SendString("OK")
}

// New creates the web service. gatherer backs the metrics route.
func New(cfg *config.Config, deps *handler.Deps, gatherer prometheus.Gatherer) (*Service, error) {
	if cfg == nil || !deps.Valid() {
		return nil, handler.ErrMissingDependency
	}

	app := fiber.New(
		fiber.Config{
			AppName:         appName,
			CaseSensitive:   true,
			Immutable:       true,
			ErrorHandler:    ErrorHandler,
			StructValidator: newStructValidator(),
		},
	)

	service := &Service{
		App:          app,
		cfg:          cfg,
		fastShutDown: cfg.DevMode,
	}
	service.alive.Store(true)

	app.Use(recoverer.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:        cfg.Log,
		CheckAliveURI: cfg.Webserver.CheckAlive,
	}))
	app.Use(TokenMiddleware(cfg.Webserver.APIToken))

	app.Get(cfg.Webserver.CheckAlive, service.CheckAlive)

	if gatherer != nil {
		app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	for _, h := range []handler.Service{new(roles.Service), new(mappers.Service)} {
		if err := h.Init(app, cfg, deps); err != nil {
			return nil, err
		}
	}

	return service, nil
}
