package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/simmodem/internal/auth"
	"github.com/danmuck/simmodem/internal/host"
	"github.com/danmuck/simmodem/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	Version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

// Options configures the admin surface. An empty Token leaves mutating
// routes open.
type Options struct {
	CorsOrigins []string
	Token       string
}

type Server struct {
	node    string
	machine *host.Machine
	router  *gin.Engine
	guard   auth.Validator
	started time.Time
}

func New(node string, machine *host.Machine, opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestObserver(node, observability.Component("admin")))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		node:    node,
		machine: machine,
		router:  r,
		started: time.Now(),
	}
	if opts.Token != "" {
		s.guard = auth.StaticToken{Token: opts.Token}
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("node", s.node).Str("addr", addr).Msg("admin.Serve listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Str("node", s.node).Msg("admin.Serve shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
