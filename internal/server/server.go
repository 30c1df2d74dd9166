// Package server exposes the generation pipelines over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wagtailgen/internal/imagestore"
	"wagtailgen/internal/pipeline"
	"wagtailgen/web"
)

const (
	defaultAddr           = ":8000"
	defaultMaxUploadBytes = 10 << 20
	shutdownTimeout       = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
)

// Backends names what the server is wired to, for the health endpoint.
type Backends struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	ImageModel string `json:"image_model,omitempty"`
}

// Config wires a Server.
type Config struct {
	Addr           string
	StaticDir      string
	MaxUploadBytes int64
	CORSOrigins    []string

	Generator *pipeline.Generator
	Text      pipeline.TextInvoker
	Image     pipeline.ImageInvoker
	Images    *imagestore.Store
	Backends  Backends

	Logger zerolog.Logger
}

// Server is the HTTP surface.
type Server struct {
	addr      string
	maxUpload int64
	gen       *pipeline.Generator
	text      pipeline.TextInvoker
	image     pipeline.ImageInvoker
	images    *imagestore.Store
	backends  Backends
	logger    zerolog.Logger
	engine    *gin.Engine
}

// New validates cfg and registers routes.
func New(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, errors.New("server: generator is required")
	}
	if cfg.Text == nil {
		return nil, errors.New("server: text backend is required")
	}
	if cfg.Image != nil && cfg.Images == nil {
		return nil, errors.New("server: image store is required with an image backend")
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		addr:      addr,
		maxUpload: maxUpload,
		gen:       cfg.Generator,
		text:      cfg.Text,
		image:     cfg.Image,
		images:    cfg.Images,
		backends:  cfg.Backends,
		logger:    cfg.Logger,
	}

	var site http.FileSystem
	if dir := strings.TrimSpace(cfg.StaticDir); dir != "" {
		site = http.Dir(dir)
	} else {
		site = http.FS(web.FS)
	}

	r := gin.New()
	r.MaxMultipartMemory = maxUpload
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}))
	r.Use(requestLogger(s.logger))
	if mw := corsMiddleware(cfg.CORSOrigins); mw != nil {
		r.Use(mw)
	}
	r.Use(staticFiles(site))
	s.routes(r)
	s.engine = r
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/healthz", s.handleHealth)
	api.GET("/ask", s.handleAsk)
	api.POST("/ask", s.handleAsk)
	api.POST("/ask_image", s.handleAskImage)
	api.GET("/refine", s.handleRefine)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "not found"})
	})
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
