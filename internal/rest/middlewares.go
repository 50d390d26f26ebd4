package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/pgstore"
)

type ctxStaffType string

const ctxStaffStr ctxStaffType = "staff"

var (
	ErrUnauthorised     = errors.New("Não foi possível validar as credenciais")
	ErrInactive         = errors.New("Usuário inativo")
	ErrPermissionDenied = errors.New("Permissões insuficientes")
)

// jwtAuth verifies the bearer token and reloads the account it names, so a
// removed or demoted account stops working before its token expires.
func (s *Server) jwtAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "Bearer") {
			s.unauthorized(w)
			return
		}
		claims, err := s.tokens.Parse(headerParts[1])
		if err != nil || claims.Subject == "" {
			s.unauthorized(w)
			return
		}
		staff, err := s.app.CurrentStaff(r.Context(), claims.Subject)
		switch {
		case errors.Is(err, pgstore.ErrStaffNotFound):
			s.unauthorized(w)
			return
		case err != nil:
			s.log.Warnf("err during loading staff: %v", err)
			s.writeResponse(w, http.StatusInternalServerError, err)
			return
		}
		if !staff.Active() {
			s.writeResponse(w, http.StatusForbidden, ErrInactive)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxStaffStr, staff))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		staff, ok := s.getStaff(r.Context())
		if !ok || staff.Role != models.RoleAdmin {
			s.writeResponse(w, http.StatusForbidden, ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	s.writeResponse(w, http.StatusUnauthorized, ErrUnauthorised)
}

func (s *Server) getStaff(ctx context.Context) (models.Staff, bool) {
	staff, ok := ctx.Value(ctxStaffStr).(models.Staff)
	return staff, ok
}
