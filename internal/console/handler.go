package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pershin-daniil/clinicconsole/internal/access"
	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/internal/auth"
	"github.com/pershin-daniil/clinicconsole/internal/dispatch"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const (
	msgMissing        = "Preencha o email e a senha."
	msgInvalid        = "Email ou senha incorretos."
	msgPending        = "A sua conta ainda aguarda aprovação do administrador."
	msgUnavailable    = "Serviço indisponível. Tente novamente mais tarde."
	msgSignedUp       = "Registo efetuado! Aguarde a aprovação do administrador."
	msgFetchFailed    = "Não foi possível carregar os dados. Tente novamente."
	msgEmptyMessage   = "Escreva uma mensagem antes de enviar."
	msgNoTarget       = "Este paciente não tem Telegram associado."
	msgNotFound       = "Consulta não encontrada."
	msgSendingAlready = "O envio anterior ainda está em curso."
)

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	state, _, err := s.router.State(r.Context(), SessionID(r))
	if err != nil {
		s.log.Warnf("err during reading session: %v", err)
	}
	s.writeResponse(w, http.StatusOK, IndexView{
		Title:    "Clínica",
		LoggedIn: state != access.Unauthenticated,
		Home:     string(access.HomeFor(state)),
	})
}

func (s *Server) loginViewHandler(w http.ResponseWriter, r *http.Request) {
	state, _, err := s.router.State(r.Context(), SessionID(r))
	if err != nil {
		s.log.Warnf("err during reading session: %v", err)
	}
	if state != access.Unauthenticated {
		http.Redirect(w, r, string(access.HomeFor(state)), http.StatusSeeOther)
		return
	}
	s.writeResponse(w, http.StatusOK, LoginView{})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeResponse(w, http.StatusBadRequest, LoginView{Error: msgMissing, Kind: "missing"})
		return
	}
	token, err := s.exchanger.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		s.writeResponse(w, http.StatusBadRequest, LoginView{Error: msgMissing, Kind: "missing"})
		return
	case errors.Is(err, auth.ErrAccountNotActive):
		s.writeResponse(w, http.StatusForbidden, LoginView{Error: msgPending, Kind: auth.KindAccountNotActive.String()})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.writeResponse(w, http.StatusUnauthorized, LoginView{Error: msgInvalid, Kind: auth.KindInvalidCredentials.String()})
		return
	case err != nil:
		s.log.Warnf("err during login: %v", err)
		s.writeResponse(w, http.StatusServiceUnavailable, LoginView{Error: msgUnavailable, Kind: auth.KindUnavailable.String()})
		return
	}

	if old := SessionID(r); old != "" {
		if err = s.router.Replace(r.Context(), old); err != nil {
			s.log.Warnf("err during dropping previous session: %v", err)
		}
		s.compositions.Drop(old)
	}
	sid := uuid.NewString()
	state, err := s.router.Login(r.Context(), sid, token.Raw)
	if err != nil {
		s.log.Warnf("err during login: %v", err)
		s.writeResponse(w, http.StatusBadGateway, LoginView{Error: msgUnavailable, Kind: auth.KindUnavailable.String()})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, string(access.HomeFor(state)), http.StatusSeeOther)
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeResponse(w, http.StatusBadRequest, LoginView{Error: err.Error()})
		return
	}
	name, email, password := r.PostForm.Get("nome"), r.PostForm.Get("email"), r.PostForm.Get("password")
	_, err := s.backend.Signup(r.Context(), models.StaffRequest{Name: &name, Email: &email, Password: &password})
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr) && !apiErr.Transient() && apiErr.Detail != "":
		s.writeResponse(w, http.StatusBadRequest, LoginView{Error: apiErr.Detail})
		return
	case err != nil:
		s.log.Warnf("err during signup: %v", err)
		s.writeResponse(w, http.StatusServiceUnavailable, LoginView{Error: msgUnavailable})
		return
	}
	s.writeResponse(w, http.StatusCreated, LoginView{Notice: msgSignedUp})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	sid := SessionID(r)
	if err := s.router.Logout(r.Context(), sid); err != nil {
		s.log.Warnf("err during logout: %v", err)
	}
	s.compositions.Drop(sid)
	s.clearCookie(w)
	http.Redirect(w, r, string(access.ViewLogin), http.StatusSeeOther)
}

func (s *Server) adminViewHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := access.FromContext(r.Context())
	view := AdminView{Name: sess.Name}
	staff, err := s.backend.ListStaff(r.Context(), sess)
	if s.rejected(w, r, err) {
		return
	}
	if err != nil {
		s.log.Warnf("err during getting staff: %v", err)
		view.Banner = bannerFor(err)
	}
	view.Staff = staff
	for _, st := range staff {
		if !st.Active() {
			view.Pending++
		}
	}
	s.writeResponse(w, http.StatusOK, view)
}

func (s *Server) approveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	sess, _ := access.FromContext(r.Context())
	_, err = s.backend.ApproveStaff(r.Context(), sess, id)
	s.afterAdminAction(w, r, err)
}

func (s *Server) removeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	sess, _ := access.FromContext(r.Context())
	err = s.backend.RemoveStaff(r.Context(), sess, id)
	s.afterAdminAction(w, r, err)
}

func (s *Server) afterAdminAction(w http.ResponseWriter, r *http.Request, err error) {
	if s.rejected(w, r, err) {
		return
	}
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr) && !apiErr.Transient():
		s.writeResponse(w, apiErr.Status, errors.New(bannerFor(err)))
		return
	case err != nil:
		s.log.Warnf("err during admin action: %v", err)
		s.writeResponse(w, http.StatusBadGateway, errors.New(bannerFor(err)))
		return
	}
	http.Redirect(w, r, string(access.ViewAdmin), http.StatusSeeOther)
}

func (s *Server) staffViewHandler(w http.ResponseWriter, r *http.Request) {
	var clinicID *int
	if raw := r.URL.Query().Get("clinica_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			s.writeResponse(w, http.StatusBadRequest, err)
			return
		}
		clinicID = &id
	}
	sess, _ := access.FromContext(r.Context())

	var (
		clinics            []models.Clinic
		bookings           []models.Booking
		clinicErr, bookErr error
		g                  errgroup.Group
	)
	g.Go(func() error {
		clinics, clinicErr = s.backend.ListClinics(r.Context(), sess)
		return nil
	})
	g.Go(func() error {
		bookings, bookErr = s.backend.ListBookings(r.Context(), sess, clinicID)
		return nil
	})
	_ = g.Wait()
	if s.rejected(w, r, errors.Join(clinicErr, bookErr)) {
		return
	}

	view := StaffView{
		Name:        sess.Name,
		Role:        sess.Role,
		ClinicID:    clinicID,
		Clinics:     clinics,
		Bookings:    bookings,
		Composition: s.compositions.Get(SessionID(r)),
	}
	for _, err := range []error{bookErr, clinicErr} {
		if err != nil {
			s.log.Warnf("err during loading staff view: %v", err)
			view.Banner = bannerFor(err)
			break
		}
	}
	s.writeResponse(w, http.StatusOK, view)
}

func (s *Server) composeHandler(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.Atoi(chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	sess, _ := access.FromContext(r.Context())
	bookings, err := s.backend.ListBookings(r.Context(), sess, nil)
	if s.rejected(w, r, err) {
		return
	}
	if err != nil {
		s.log.Warnf("err during loading bookings: %v", err)
		s.writeResponse(w, http.StatusBadGateway, errors.New(bannerFor(err)))
		return
	}
	for _, b := range bookings {
		if b.ID == bookingID {
			s.compositions.Open(SessionID(r), b)
			http.Redirect(w, r, string(access.ViewStaff), http.StatusSeeOther)
			return
		}
	}
	s.writeResponse(w, http.StatusNotFound, errors.New(msgNotFound))
}

func (s *Server) cancelComposeHandler(w http.ResponseWriter, r *http.Request) {
	s.compositions.Cancel(SessionID(r))
	http.Redirect(w, r, string(access.ViewStaff), http.StatusSeeOther)
}

func (s *Server) notifyHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	sid := SessionID(r)
	text := r.PostForm.Get("mensagem")
	began, err := s.compositions.Begin(sid, text)
	switch {
	case errors.Is(err, ErrNotComposing):
		s.writeResponse(w, http.StatusConflict, err)
		return
	case errors.Is(err, ErrSendInFlight):
		s.writeResponse(w, http.StatusConflict, errors.New(msgSendingAlready))
		return
	}

	sess, _ := access.FromContext(r.Context())
	_, err = s.dispatcher.Send(r.Context(), sess, began.target, text)
	if s.rejected(w, r, err) {
		return
	}
	var dispatchErr *dispatch.DispatchError
	switch {
	case err == nil:
		s.writeResponse(w, http.StatusOK, s.compositions.Finish(sid, began, "", true))
	case errors.Is(err, dispatch.ErrEmptyMessage):
		s.writeResponse(w, http.StatusUnprocessableEntity, s.compositions.Finish(sid, began, msgEmptyMessage, false))
	case errors.Is(err, dispatch.ErrNoTarget):
		s.writeResponse(w, http.StatusUnprocessableEntity, s.compositions.Finish(sid, began, msgNoTarget, false))
	case errors.As(err, &dispatchErr):
		s.writeResponse(w, http.StatusBadGateway, s.compositions.Finish(sid, began, dispatchErr.Reason, false))
	default:
		s.log.Warnf("err during dispatch: %v", err)
		s.writeResponse(w, http.StatusBadGateway, s.compositions.Finish(sid, began, msgUnavailable, false))
	}
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	sess, _ := access.FromContext(r.Context())
	s.writeResponse(w, http.StatusOK, ProfileView{
		Name:      sess.Name,
		Email:     sess.Subject,
		Role:      sess.Role,
		ExpiresAt: sess.ExpiresAt,
	})
}

// rejected turns an authorization rejection from the backend into a forced
// logout. It reports whether the response has been written.
func (s *Server) rejected(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) && !errors.Is(err, apiclient.ErrNoSession) {
		return false
	}
	sid := SessionID(r)
	if _, rejectErr := s.router.Reject(r.Context(), sid); rejectErr != nil {
		s.log.Warnf("err during forced logout: %v", rejectErr)
	}
	s.compositions.Drop(sid)
	s.clearCookie(w)
	http.Redirect(w, r, string(access.ViewLogin), http.StatusSeeOther)
	return true
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func bannerFor(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && !apiErr.Transient() && strings.TrimSpace(apiErr.Detail) != "" {
		return apiErr.Detail
	}
	return msgFetchFailed
}

func (s *Server) writeResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if x, ok := data.(error); ok {
		if err := json.NewEncoder(w).Encode(models.ErrorResponse{Detail: x.Error()}); err != nil {
			s.log.Warnf("err during encoding error: %v", err)
		}
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnf("err during encoding response: %v", err)
	}
}
