package access

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/internal/session"
	"github.com/pershin-daniil/clinicconsole/pkg/metrics"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

type State int

const (
	Unauthenticated State = iota
	AuthenticatedAdmin
	AuthenticatedStaff
)

func (s State) String() string {
	switch s {
	case AuthenticatedAdmin:
		return "admin"
	case AuthenticatedStaff:
		return "staff"
	default:
		return "unauthenticated"
	}
}

type View string

const (
	ViewIndex   View = "/"
	ViewLogin   View = "/auth"
	ViewAdmin   View = "/admin"
	ViewStaff   View = "/funcionario"
	ViewProfile View = "/perfil"
)

// Decision is the outcome of Gate: either allow or redirect to a view.
type Decision struct {
	Redirect View
}

var Allow = Decision{}

func RedirectTo(v View) Decision {
	return Decision{Redirect: v}
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

func StateOf(sess session.Session, ok bool) State {
	if !ok {
		return Unauthenticated
	}
	switch sess.Role {
	case models.RoleAdmin:
		return AuthenticatedAdmin
	case models.RoleStaff:
		return AuthenticatedStaff
	default:
		return Unauthenticated
	}
}

func HomeFor(state State) View {
	switch state {
	case AuthenticatedAdmin:
		return ViewAdmin
	case AuthenticatedStaff:
		return ViewStaff
	default:
		return ViewLogin
	}
}

// Gate is the single navigation check for every guarded view.
func Gate(state State, view View) Decision {
	switch view {
	case ViewIndex, ViewLogin:
		return Allow
	}
	if state == Unauthenticated {
		return RedirectTo(ViewLogin)
	}
	if view == ViewAdmin && state != AuthenticatedAdmin {
		return RedirectTo(HomeFor(state))
	}
	return Allow
}

type Sessions interface {
	Set(ctx context.Context, sid, raw string) (session.Session, error)
	Get(ctx context.Context, sid string) (session.Session, bool, error)
	Clear(ctx context.Context, sid string) (bool, error)
}

type ctxSessionType string

const ctxSessionStr ctxSessionType = "session"

type Router struct {
	log      *logrus.Entry
	sessions Sessions
	sid      func(r *http.Request) string
}

// NewRouter builds the router. sid extracts the browser session id from a request.
func NewRouter(log *logrus.Logger, sessions Sessions, sid func(r *http.Request) string) *Router {
	return &Router{
		log:      log.WithField("component", "access"),
		sessions: sessions,
		sid:      sid,
	}
}

func (rt *Router) State(ctx context.Context, sid string) (State, session.Session, error) {
	sess, ok, err := rt.sessions.Get(ctx, sid)
	if err != nil {
		return Unauthenticated, session.Session{}, err
	}
	return StateOf(sess, ok), sess, nil
}

// Login stores a freshly exchanged token and enters the matching state.
func (rt *Router) Login(ctx context.Context, sid, raw string) (State, error) {
	sess, err := rt.sessions.Set(ctx, sid, raw)
	if err != nil {
		return Unauthenticated, fmt.Errorf("err during setting session: %w", err)
	}
	state := StateOf(sess, true)
	rt.log.WithField("subject", sess.Subject).Infof("transition %s -> %s", Unauthenticated, state)
	metrics.SessionTransitions.WithLabelValues("login").Inc()
	return state, nil
}

func (rt *Router) Logout(ctx context.Context, sid string) error {
	_, err := rt.leave(ctx, sid, "logout")
	return err
}

// Replace drops a session superseded by a fresh login of the same browser.
func (rt *Router) Replace(ctx context.Context, sid string) error {
	_, err := rt.leave(ctx, sid, "replaced")
	return err
}

// Reject handles an authorization rejection from the backend. Only the call
// that actually removes the session counts as the transition.
func (rt *Router) Reject(ctx context.Context, sid string) (bool, error) {
	return rt.leave(ctx, sid, "rejected")
}

func (rt *Router) leave(ctx context.Context, sid, reason string) (bool, error) {
	removed, err := rt.sessions.Clear(ctx, sid)
	if err != nil {
		return false, err
	}
	if removed {
		rt.log.Infof("transition -> %s (%s)", Unauthenticated, reason)
		metrics.SessionTransitions.WithLabelValues(reason).Inc()
	}
	return removed, nil
}

// Guard consults the session on every navigation to view and either serves
// the request or redirects.
func (rt *Router) Guard(view View) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, sess, err := rt.State(r.Context(), rt.sid(r))
			if err != nil {
				rt.log.Warnf("err during reading session: %v", err)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if d := Gate(state, view); !d.Allowed() {
				http.Redirect(w, r, string(d.Redirect), http.StatusSeeOther)
				return
			}
			if state != Unauthenticated {
				r = r.WithContext(context.WithValue(r.Context(), ctxSessionStr, sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// FromContext returns the session Guard attached to the request.
func FromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(ctxSessionStr).(session.Session)
	return sess, ok
}
