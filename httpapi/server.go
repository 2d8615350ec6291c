// Package httpapi exposes the drive service and wallet authentication over
// HTTP with JSON bodies.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/drive"
	"github.com/hashdriveorg/hashdrive-go/observability"
)

// HeaderWallet names the requesting wallet on downloads.
const HeaderWallet = "wallet"

const (
	maxJSONBody = 64 << 10

	// multipartOverhead is allowed on top of MaxUploadBytes for part
	// headers and boundaries.
	multipartOverhead = 1 << 20

	shutdownGrace = 15 * time.Second
)

// Options configures a Server.
type Options struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	NonceRate      rate.Limit
	NonceBurst     int

	// Metrics and Health are optional; nil disables /metrics and serves
	// an empty health report.
	Metrics *observability.Metrics
	Health  *observability.HealthChecker
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: 100 << 20,
		CORSOrigins:    []string{"http://localhost:3000"},
		NonceRate:      1,
		NonceBurst:     5,
	}
}

// Server routes HTTP requests to the drive service and the auth manager.
type Server struct {
	drive   *drive.Service
	auth    *auth.Manager
	opts    Options
	metrics *observability.Metrics
	health  *observability.HealthChecker
	nonces  *clientLimiters
	log     zerolog.Logger

	handler http.Handler
}

// New creates a Server.
func New(svc *drive.Service, mgr *auth.Manager, opts Options) *Server {
	d := DefaultOptions()
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = d.MaxUploadBytes
	}
	if opts.NonceRate <= 0 {
		opts.NonceRate = d.NonceRate
	}
	if opts.NonceBurst <= 0 {
		opts.NonceBurst = d.NonceBurst
	}
	if opts.Health == nil {
		opts.Health = observability.NewHealthChecker("")
	}

	s := &Server{
		drive:   svc,
		auth:    mgr,
		opts:    opts,
		metrics: opts.Metrics,
		health:  opts.Health,
		nonces:  newClientLimiters(opts.NonceRate, opts.NonceBurst),
		log:     zerolog.Nop(),
	}
	s.handler = withRequestID(s.withCORS(s.withLogging(s.routes())))
	return s
}

// SetLogger sets the logger.
func (s *Server) SetLogger(l zerolog.Logger) { s.log = l }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Trailing-slash forms are kept for older clients.
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /upload/{$}", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("GET /files/{$}", s.handleList)
	mux.HandleFunc("GET /files/total", s.handleTotal)
	mux.HandleFunc("POST /files/{index}/grants", s.handleGrant)
	mux.HandleFunc("GET /download/{index}", s.handleDownload)
	mux.HandleFunc("GET /auth/nonce/{wallet}", s.handleNonce)
	mux.HandleFunc("POST /auth/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/verify/{$}", s.handleVerify)

	mux.Handle("GET /healthz", s.health.Handler())
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// HTTPServer returns an http.Server for s with header and idle timeouts.
// Read and write timeouts stay unset so large transfers are not cut off;
// request contexts carry client cancellation instead.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    64 << 10,
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.HTTPServer(ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
