package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/pgstore"
	"github.com/pershin-daniil/clinicconsole/pkg/service"
	"github.com/pershin-daniil/clinicconsole/pkg/tokens"
)

type fakeApp struct {
	staff    map[string]models.Staff
	bookings []models.Booking
	notified []models.Notification
	notifyFn func(n models.Notification) error
	clinicID *int
}

func (f *fakeApp) Login(_ context.Context, email, password string) (models.TokenResponse, error) {
	staff, ok := f.staff[email]
	if !ok || password != "pw" {
		return models.TokenResponse{}, models.ErrInvalidCredentials
	}
	if !staff.Active() {
		return models.TokenResponse{}, models.ErrAccountNotActive
	}
	return models.TokenResponse{AccessToken: "tok-" + email, TokenType: "bearer"}, nil
}

func (f *fakeApp) Signup(_ context.Context, req models.StaffRequest) (models.Staff, error) {
	if req.Email == nil || *req.Email == "" {
		return models.Staff{}, service.ErrValidation
	}
	if _, ok := f.staff[*req.Email]; ok {
		return models.Staff{}, pgstore.ErrEmailTaken
	}
	s := models.Staff{ID: len(f.staff) + 1, Name: *req.Name, Email: *req.Email, Role: models.RoleStaff, Status: models.StatusPending}
	f.staff[s.Email] = s
	return s, nil
}

func (f *fakeApp) CurrentStaff(_ context.Context, email string) (models.Staff, error) {
	s, ok := f.staff[email]
	if !ok {
		return models.Staff{}, pgstore.ErrStaffNotFound
	}
	return s, nil
}

func (f *fakeApp) ListStaff(context.Context) ([]models.Staff, error) {
	out := make([]models.Staff, 0, len(f.staff))
	for _, s := range f.staff {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeApp) ApproveStaff(_ context.Context, id int) (models.Staff, error) {
	for email, s := range f.staff {
		if s.ID == id {
			s.Status = models.StatusActive
			f.staff[email] = s
			return s, nil
		}
	}
	return models.Staff{}, pgstore.ErrStaffNotFound
}

func (f *fakeApp) RemoveStaff(_ context.Context, id int) (models.Staff, error) {
	for email, s := range f.staff {
		if s.ID == id {
			delete(f.staff, email)
			return s, nil
		}
	}
	return models.Staff{}, pgstore.ErrStaffNotFound
}

func (f *fakeApp) ListClinics(context.Context) ([]models.Clinic, error) {
	return []models.Clinic{{ID: 1, Name: "UBS Dr. Silva", Zone: "Norte"}}, nil
}

func (f *fakeApp) ListBookings(_ context.Context, clinicID *int) ([]models.Booking, error) {
	f.clinicID = clinicID
	return f.bookings, nil
}

func (f *fakeApp) Notify(_ context.Context, n models.Notification) error {
	if f.notifyFn != nil {
		if err := f.notifyFn(n); err != nil {
			return err
		}
	}
	f.notified = append(f.notified, n)
	return nil
}

type RestSuite struct {
	suite.Suite
	app    *fakeApp
	tokens *tokens.Issuer
	srv    *httptest.Server
}

func (s *RestSuite) SetupTest() {
	s.app = &fakeApp{staff: map[string]models.Staff{
		"admin@clinica.com": {ID: 1, Name: "Admin", Email: "admin@clinica.com", Role: models.RoleAdmin, Status: models.StatusActive},
		"ana@clinica.com":   {ID: 2, Name: "Ana", Email: "ana@clinica.com", Role: models.RoleStaff, Status: models.StatusActive},
		"bia@clinica.com":   {ID: 3, Name: "Bia", Email: "bia@clinica.com", Role: models.RoleStaff, Status: models.StatusPending},
	}}
	s.tokens = tokens.NewIssuer("secret", time.Hour)
	server := NewServer(logrus.New(), s.app, s.tokens, ":0", "test")
	s.srv = httptest.NewServer(server.Handler())
}

func (s *RestSuite) TearDownTest() {
	s.srv.Close()
}

func (s *RestSuite) tokenFor(email string) string {
	s.T().Helper()
	staff := s.app.staff[email]
	if staff.Email == "" {
		staff = models.Staff{Email: email, Role: models.RoleStaff}
	}
	token, _, err := s.tokens.Issue(staff)
	s.Require().NoError(err)
	return token
}

func (s *RestSuite) do(method, path, token string, body string, contentType string) (*http.Response, models.ErrorResponse) {
	s.T().Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.srv.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	var errResp models.ErrorResponse
	if resp.StatusCode >= 400 {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	}
	return resp, errResp
}

func (s *RestSuite) TestLogin() {
	form := url.Values{"username": {"admin@clinica.com"}, "password": {"pw"}}.Encode()
	resp, _ := s.do(http.MethodPost, "/token", "", form, "application/x-www-form-urlencoded")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var token models.TokenResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&token))
	s.Require().Equal("tok-admin@clinica.com", token.AccessToken)

	s.Run("bad password", func() {
		form := url.Values{"username": {"admin@clinica.com"}, "password": {"nope"}}.Encode()
		resp, errResp := s.do(http.MethodPost, "/token", "", form, "application/x-www-form-urlencoded")
		s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Require().Equal(errBadCredentials.Error(), errResp.Detail)
	})

	s.Run("pending account", func() {
		form := url.Values{"username": {"bia@clinica.com"}, "password": {"pw"}}.Encode()
		resp, errResp := s.do(http.MethodPost, "/token", "", form, "application/x-www-form-urlencoded")
		s.Require().Equal(http.StatusForbidden, resp.StatusCode)
		s.Require().Equal(errPending.Error(), errResp.Detail)
	})

	s.Run("missing fields", func() {
		resp, _ := s.do(http.MethodPost, "/token", "", "username=x", "application/x-www-form-urlencoded")
		s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RestSuite) TestSignup() {
	resp, _ := s.do(http.MethodPost, "/funcionarios/signup", "", `{"nome":"Caio","email":"caio@clinica.com","password":"x"}`, "application/json")
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var staff models.Staff
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&staff))
	s.Require().Equal(models.StatusPending, staff.Status)

	resp, errResp := s.do(http.MethodPost, "/funcionarios/signup", "", `{"nome":"Caio","email":"caio@clinica.com","password":"x"}`, "application/json")
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Equal(errEmailTaken.Error(), errResp.Detail)
}

func (s *RestSuite) TestAdminRoutesRequireAdmin() {
	resp, _ := s.do(http.MethodGet, "/admin/funcionarios", "", "", "")
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, errResp := s.do(http.MethodGet, "/admin/funcionarios", s.tokenFor("ana@clinica.com"), "", "")
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
	s.Require().Equal(ErrPermissionDenied.Error(), errResp.Detail)

	resp, _ = s.do(http.MethodGet, "/admin/funcionarios", s.tokenFor("admin@clinica.com"), "", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var staff []models.Staff
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&staff))
	s.Require().Len(staff, 3)
}

func (s *RestSuite) TestApproveAndRemove() {
	admin := s.tokenFor("admin@clinica.com")
	resp, _ := s.do(http.MethodPost, "/admin/aprovar/3", admin, "", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().True(s.app.staff["bia@clinica.com"].Active())

	resp, _ = s.do(http.MethodDelete, "/admin/remover/3", admin, "", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, errResp := s.do(http.MethodPost, "/admin/aprovar/3", admin, "", "")
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
	s.Require().Equal(errStaffNotFound.Error(), errResp.Detail)
}

func (s *RestSuite) TestTokenRejections() {
	resp, _ := s.do(http.MethodGet, "/consultas", "garbage", "", "")
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/consultas", s.tokenFor("ghost@clinica.com"), "", "")
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, errResp := s.do(http.MethodGet, "/consultas", s.tokenFor("bia@clinica.com"), "", "")
	s.Require().Equal(http.StatusForbidden, resp.StatusCode)
	s.Require().Equal(ErrInactive.Error(), errResp.Detail)
}

func (s *RestSuite) TestBookings() {
	s.app.bookings = []models.Booking{{ID: 7, PatientName: "Carlos", TelegramID: "@carlos_o"}}
	resp, _ := s.do(http.MethodGet, "/consultas?clinica_id=2", s.tokenFor("ana@clinica.com"), "", "")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var bookings []models.Booking
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&bookings))
	s.Require().Len(bookings, 1)
	s.Require().Equal("@carlos_o", bookings[0].TelegramID)
	s.Require().NotNil(s.app.clinicID)
	s.Require().Equal(2, *s.app.clinicID)
}

func (s *RestSuite) TestNotify() {
	token := s.tokenFor("ana@clinica.com")
	resp, _ := s.do(http.MethodPost, "/notificar", token, `{"telegram_id":"@carlos_o","mensagem":"Sua consulta foi confirmada"}`, "application/json")
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var status models.StatusResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	s.Require().Equal("sucesso", status.Status)
	s.Require().Equal([]models.Notification{{TelegramID: "@carlos_o", Message: "Sua consulta foi confirmada"}}, s.app.notified)

	s.app.notifyFn = func(models.Notification) error { return service.ErrChatUnreachable }
	resp, errResp := s.do(http.MethodPost, "/notificar", token, `{"telegram_id":"1","mensagem":"oi"}`, "application/json")
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	s.Require().Equal(errChatBlocked.Error(), errResp.Detail)
}

func (s *RestSuite) TestNotifyWithoutBotToken() {
	token := s.tokenFor("ana@clinica.com")
	s.app.notifyFn = func(models.Notification) error { return service.ErrNoNotifier }
	resp, errResp := s.do(http.MethodPost, "/notificar", token, `{"telegram_id":"@carlos_o","mensagem":"oi"}`, "application/json")
	s.Require().Equal(http.StatusInternalServerError, resp.StatusCode)
	s.Require().Equal(errNoBotToken.Error(), errResp.Detail)
}

func TestRestSuite(t *testing.T) {
	suite.Run(t, new(RestSuite))
}
