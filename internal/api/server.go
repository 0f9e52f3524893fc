// Package api serves the OpenAI-compatible speech endpoints in front of a
// gated speech engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/gate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
	defaultMaxBodyBytes      = 1 << 20
	defaultMaxInputChars     = 4096

	operationName = "tts-gateway"
)

const (
	logFmtListening      = "HTTP front door listening on %s"
	logFmtShutdownFailed = "HTTP front door shutdown failed: %v"
)

// Options tunes the front door.
type Options struct {
	// MaxInputChars bounds the input text in runes.
	MaxInputChars int
	// RequestTimeout bounds one synthesis; zero leaves it to the client.
	RequestTimeout time.Duration
	// MaxBodyBytes bounds the request body.
	MaxBodyBytes int64
}

// Server is the HTTP front door.
type Server struct {
	engine   *gate.Guarded
	gatherer prometheus.Gatherer
	opts     Options
	log      *logger.Logger
}

// NewServer creates a Server. gatherer may be nil, which disables /metrics.
func NewServer(engine *gate.Guarded, gatherer prometheus.Gatherer, opts Options, log *logger.Logger) *Server {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = defaultMaxInputChars
	}

	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Server{
		engine:   engine,
		gatherer: gatherer,
		opts:     opts,
		log:      log,
	}
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/audio/voices", s.handleVoices)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return otelhttp.NewHandler(mux, operationName)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	if s.log != nil {
		s.log.Info(logFmtListening, ln.Addr().String())
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil && s.log != nil {
		s.log.Error(logFmtShutdownFailed, err)
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped: %w", err)
	}

	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var listenConfig net.ListenConfig

	ln, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}
