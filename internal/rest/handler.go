package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/pgstore"
	"github.com/pershin-daniil/clinicconsole/pkg/service"
)

var (
	errBadCredentials = errors.New("Email ou senha incorretos")
	errPending        = errors.New("Utilizador inativo ou pendente de aprovação")
	errEmailTaken     = errors.New("Email já registado")
	errStaffNotFound  = errors.New("Funcionário não encontrado")
	errChatBlocked    = errors.New("Não foi possível enviar a mensagem. O utilizador pode ter bloqueado o bot.")
	errNoBotToken     = errors.New("Token do Telegram não configurado.")
)

type App interface {
	Login(ctx context.Context, email, password string) (models.TokenResponse, error)
	Signup(ctx context.Context, req models.StaffRequest) (models.Staff, error)
	CurrentStaff(ctx context.Context, email string) (models.Staff, error)
	ListStaff(ctx context.Context) ([]models.Staff, error)
	ApproveStaff(ctx context.Context, id int) (models.Staff, error)
	RemoveStaff(ctx context.Context, id int) (models.Staff, error)
	ListClinics(ctx context.Context) ([]models.Clinic, error)
	ListBookings(ctx context.Context, clinicID *int) ([]models.Booking, error)
	Notify(ctx context.Context, n models.Notification) error
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	_, err := fmt.Fprintf(w, "%s\n", s.version)
	if err != nil {
		s.log.Warnf("err during writing to connection: %v", err)
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		s.writeResponse(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	token, err := s.app.Login(r.Context(), username, password)
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		s.writeResponse(w, http.StatusUnauthorized, errBadCredentials)
		return
	case errors.Is(err, models.ErrAccountNotActive):
		s.writeResponse(w, http.StatusForbidden, errPending)
		return
	case err != nil:
		s.log.Warnf("err during login: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, token)
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var req models.StaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	staff, err := s.app.Signup(r.Context(), req)
	switch {
	case errors.Is(err, service.ErrValidation):
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, pgstore.ErrEmailTaken):
		s.writeResponse(w, http.StatusBadRequest, errEmailTaken)
		return
	case err != nil:
		s.log.Warnf("err during signup: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusCreated, staff)
}

func (s *Server) listStaffHandler(w http.ResponseWriter, r *http.Request) {
	staff, err := s.app.ListStaff(r.Context())
	if err != nil {
		s.log.Warnf("err during getting staff: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, staff)
}

func (s *Server) approveStaffHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	staff, err := s.app.ApproveStaff(r.Context(), id)
	switch {
	case errors.Is(err, pgstore.ErrStaffNotFound):
		s.writeResponse(w, http.StatusNotFound, errStaffNotFound)
		return
	case err != nil:
		s.log.Warnf("err during approving staff: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, staff)
}

func (s *Server) removeStaffHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	_, err = s.app.RemoveStaff(r.Context(), id)
	switch {
	case errors.Is(err, pgstore.ErrStaffNotFound):
		s.writeResponse(w, http.StatusNotFound, errStaffNotFound)
		return
	case err != nil:
		s.log.Warnf("err during removing staff: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, models.StatusResponse{Status: "success"})
}

func (s *Server) listClinicsHandler(w http.ResponseWriter, r *http.Request) {
	clinics, err := s.app.ListClinics(r.Context())
	if err != nil {
		s.log.Warnf("err during getting clinics: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, clinics)
}

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	var clinicID *int
	if raw := r.URL.Query().Get("clinica_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			s.writeResponse(w, http.StatusBadRequest, err)
			return
		}
		clinicID = &id
	}
	bookings, err := s.app.ListBookings(r.Context(), clinicID)
	if err != nil {
		s.log.Warnf("err during getting bookings: %v", err)
		s.writeResponse(w, http.StatusInternalServerError, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	s.writeResponse(w, http.StatusOK, bookings)
}

func (s *Server) notifyHandler(w http.ResponseWriter, r *http.Request) {
	var n models.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	}
	err := s.app.Notify(r.Context(), n)
	switch {
	case errors.Is(err, service.ErrValidation):
		s.writeResponse(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, service.ErrChatUnreachable):
		s.writeResponse(w, http.StatusBadRequest, errChatBlocked)
		return
	case errors.Is(err, service.ErrNoNotifier):
		s.log.Errorf("err during notifying chat %s: %v", n.TelegramID, err)
		s.writeResponse(w, http.StatusInternalServerError, errNoBotToken)
		return
	case err != nil:
		s.log.Warnf("err during notifying chat %s: %v", n.TelegramID, err)
		s.writeResponse(w, http.StatusBadRequest, fmt.Errorf("Não foi possível enviar a mensagem. Erro: %v", err))
		return
	}
	s.writeResponse(w, http.StatusOK, models.StatusResponse{Status: "sucesso"})
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
		s.log.Warnf("err during encoding responce: %v", err)
	}
}
