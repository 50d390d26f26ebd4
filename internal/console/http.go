package console

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

	"github.com/pershin-daniil/clinicconsole/internal/access"
	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/internal/auth"
	"github.com/pershin-daniil/clinicconsole/internal/dispatch"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const (
	CookieName      = "clinic_session"
	shutdownTimeout = 5 * time.Second
	pruneInterval   = time.Minute
)

type Backend interface {
	Signup(ctx context.Context, req models.StaffRequest) (models.Staff, error)
	ListStaff(ctx context.Context, auth apiclient.Authorizer) ([]models.Staff, error)
	ApproveStaff(ctx context.Context, auth apiclient.Authorizer, id int) (models.Staff, error)
	RemoveStaff(ctx context.Context, auth apiclient.Authorizer, id int) error
	ListClinics(ctx context.Context, auth apiclient.Authorizer) ([]models.Clinic, error)
	ListBookings(ctx context.Context, auth apiclient.Authorizer, clinicID *int) ([]models.Booking, error)
}

type Exchanger interface {
	Login(ctx context.Context, identifier, secret string) (auth.Token, error)
}

type Dispatcher interface {
	Send(ctx context.Context, auth apiclient.Authorizer, target dispatch.Target, body string) (dispatch.Ack, error)
}

type Server struct {
	log          *logrus.Entry
	backend      Backend
	exchanger    Exchanger
	router       *access.Router
	dispatcher   Dispatcher
	compositions *Compositions
	server       *http.Server
	cookieSecure bool
	version      string
}

type Options struct {
	Address      string
	Version      string
	CookieSecure bool
}

func NewServer(log *logrus.Logger, backend Backend, exchanger Exchanger, router *access.Router, dispatcher Dispatcher, opts Options) *Server {
	s := Server{
		log:          log.WithField("component", "console"),
		backend:      backend,
		exchanger:    exchanger,
		router:       router,
		dispatcher:   dispatcher,
		compositions: NewCompositions(),
		cookieSecure: opts.CookieSecure,
		version:      opts.Version,
	}
	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &s
}

// SessionID reads the browser session id from the request cookie.
func SessionID(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
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

	r.Get("/", s.indexHandler)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/", s.loginViewHandler)
		r.Post("/login", s.loginHandler)
		r.Post("/signup", s.signupHandler)
		r.Post("/logout", s.logoutHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.router.Guard(access.ViewAdmin))
		r.Get("/", s.adminViewHandler)
		r.Post("/aprovar/{id}", s.approveHandler)
		r.Post("/remover/{id}", s.removeHandler)
	})

	r.Route("/funcionario", func(r chi.Router) {
		r.Use(s.router.Guard(access.ViewStaff))
		r.Get("/", s.staffViewHandler)
		r.Post("/compor/cancelar", s.cancelComposeHandler)
		r.Post("/compor/{bookingID}", s.composeHandler)
		r.Post("/notificar", s.notifyHandler)
	})

	r.With(s.router.Guard(access.ViewProfile)).Get("/perfil", s.profileHandler)
	return r
}

func (s *Server) Run(ctx context.Context) error {
	go s.pruneLoop(ctx)
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

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneCompositions(ctx)
		}
	}
}

// pruneCompositions drops compositions whose session has expired or was
// removed without the browser coming back.
func (s *Server) pruneCompositions(ctx context.Context) {
	for _, sid := range s.compositions.Sessions() {
		state, _, err := s.router.State(ctx, sid)
		if err != nil {
			s.log.Warnf("err during checking session for composition: %v", err)
			continue
		}
		if state == access.Unauthenticated {
			s.compositions.Drop(sid)
		}
	}
}
