package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const shutdownTimeout = 5 * time.Second

type TokenParser interface {
	Parse(accessToken string) (*models.Claims, error)
}

type Server struct {
	log     *logrus.Entry
	app     App
	tokens  TokenParser
	server  *http.Server
	version string
}

func NewServer(log *logrus.Logger, app App, tokens TokenParser, address, version string) *Server {
	s := Server{
		log:     log.WithField("component", "rest"),
		app:     app,
		tokens:  tokens,
		version: version,
	}
	s.server = &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/version", s.versionHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/token", s.loginHandler)
	r.Post("/funcionarios/signup", s.signupHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.jwtAuth)
		r.Get("/clinicas", s.listClinicsHandler)
		r.Get("/consultas", s.listBookingsHandler)
		r.Post("/notificar", s.notifyHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/funcionarios", s.listStaffHandler)
			r.Post("/aprovar/{id}", s.approveStaffHandler)
			r.Delete("/remover/{id}", s.removeStaffHandler)
		})
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("err during shutdown: %v", err)
		}
	}()
	s.log.Infof("listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("err serving http: %w", err)
	}
	return nil
}
