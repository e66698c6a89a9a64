package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"s3drive/internal/config"
	"s3drive/internal/metrics"
	"s3drive/internal/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverIdleTimeout       = 60 * time.Second
	serverMaxHeaderBytes    = 1 << 20
	shutdownTimeout         = 5 * time.Second
)

// Server is the bucket front-end: one handler per route, each making at most
// one call to the object store.
type Server struct {
	cfg     *config.Config
	store   storage.ObjectStore
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	handler http.Handler
}

func New(cfg *config.Config, store storage.ObjectStore, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		log:     log,
		metrics: metrics.New(),
	}
	s.handler = s.newHandler()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts every listener down.
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{s.newHTTPServer(s.cfg.Server.Addr, s.Handler())}
	if s.cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		servers = append(servers, s.newHTTPServer(s.cfg.Server.MetricsAddr, mux))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.log.WithField("addr", srv.Addr).Info("listening")
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       serverIdleTimeout,
		MaxHeaderBytes:    serverMaxHeaderBytes,
	}
}
