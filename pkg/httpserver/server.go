// Package httpserver runs the fiber application behind the ops endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"
)

const (
	_defaultAddr            = ":8080"
	_defaultAppName         = "ledger-outbox"
	_defaultReadTimeout     = 5 * time.Second
	_defaultWriteTimeout    = 10 * time.Second
	_defaultIdleTimeout     = 60 * time.Second
	_defaultShutdownTimeout = 3 * time.Second
)

type Server struct {
	eg *errgroup.Group

	App    *fiber.App
	notify chan error

	address         string
	appName         string
	prefork         bool
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration

	logger logger.Interface
}

func New(l logger.Interface, opts ...Option) *Server {
	s := &Server{
		eg:              &errgroup.Group{},
		notify:          make(chan error, 1),
		address:         _defaultAddr,
		appName:         _defaultAppName,
		readTimeout:     _defaultReadTimeout,
		writeTimeout:    _defaultWriteTimeout,
		idleTimeout:     _defaultIdleTimeout,
		shutdownTimeout: _defaultShutdownTimeout,
		logger:          l,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.App = fiber.New(fiber.Config{
		AppName:               s.appName,
		Prefork:               s.prefork,
		ReadTimeout:           s.readTimeout,
		WriteTimeout:          s.writeTimeout,
		IdleTimeout:           s.idleTimeout,
		DisableStartupMessage: true,
		JSONDecoder:           json.Unmarshal,
		JSONEncoder:           json.Marshal,
		ErrorHandler:          s.handleError,
	})

	s.App.Use(recover.New())

	return s
}

// handleError answers unhandled errors as {"error": "..."}.
func (s *Server) handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error(err, "restapi server - Server - %s %s", ctx.Method(), ctx.Path())
	}

	return ctx.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) Start() {
	s.eg.Go(func() error {
		err := s.App.Listen(s.address)
		if err != nil {
			s.notify <- err
			close(s.notify)

			return err
		}

		return nil
	})

	s.logger.Info("restapi server - Server - Started on %s", s.address)
}

func (s *Server) Notify() <-chan error {
	return s.notify
}

func (s *Server) Shutdown() error {
	var shutdownErrors []error

	err := s.App.ShutdownWithTimeout(s.shutdownTimeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(err, "restapi server - Server - Shutdown - s.App.ShutdownWithTimeout")

		shutdownErrors = append(shutdownErrors, err)
	}

	err = s.eg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error(err, "restapi server - Server - Shutdown - s.eg.Wait")

		shutdownErrors = append(shutdownErrors, err)
	}

	s.logger.Info("restapi server - Server - Shutdown")

	return errors.Join(shutdownErrors...)
}
