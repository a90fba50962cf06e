package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type Server struct {
	hs  *http.Server
	log *logrus.Logger
}

// New wraps mux with a /healthz endpoint. When db is non-nil the health check pings it.
func New(port string, mux *http.ServeMux, db *sql.DB, log *logrus.Logger) *Server {
	mux.HandleFunc("/healthz", Healthz(db))
	return &Server{
		hs: &http.Server{
			Addr:              net.JoinHostPort("0.0.0.0", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Addr() string { return s.hs.Addr }

// Run serves until ctx is done, then drains in-flight requests for up to drain.
func (s *Server) Run(ctx context.Context, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.hs.Addr)
		errCh <- s.hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	return s.hs.Shutdown(shCtx)
}

func Healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
