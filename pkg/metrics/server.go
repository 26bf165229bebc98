package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/trackvault-backend/pkg/logger"
)

const shutdownGrace = 5 * time.Second

// Server serves /metrics for processes without an API router.
type Server struct {
	addr    string
	handler http.Handler
	logg    *logger.Logger
}

// NewServer returns nil when addr is empty so callers can skip it.
func NewServer(addr string, gatherer prometheus.Gatherer, logg *logger.Logger) *Server {
	if addr == "" || gatherer == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{addr: addr, handler: mux, logg: logg}
}

func (s *Server) Name() string { return "metrics" }

func (s *Server) Handler() http.Handler { return s.handler }

// Run listens until ctx is cancelled, then drains in-flight scrapes.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "addr", ln.Addr().String()), "metrics listener started")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
