package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/pershin-daniil/clinicconsole/pkg/metrics"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/notifier"
	"github.com/pershin-daniil/clinicconsole/pkg/pgstore"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrChatUnreachable = errors.New("chat unreachable")
	ErrDeliveryFailed  = errors.New("delivery failed")
	ErrNoNotifier      = errors.New("telegram notifier is not configured")
)

const notificationTemplate = "⚠️ *Aviso da Clínica*\n\nOlá!\n%s"

type Notifier interface {
	Notify(ctx context.Context, chatID, message string) error
}

type Store interface {
	StaffByEmail(ctx context.Context, email string) (models.Staff, error)
	CreateStaff(ctx context.Context, staff models.Staff) (models.Staff, error)
	EnsureAdmin(ctx context.Context, staff models.Staff) (bool, error)
	ListStaff(ctx context.Context) ([]models.Staff, error)
	ApproveStaff(ctx context.Context, id int) (models.Staff, error)
	DeleteStaff(ctx context.Context, id int) (models.Staff, error)
	ListClinics(ctx context.Context) ([]models.Clinic, error)
	ListBookings(ctx context.Context, clinicID *int) ([]models.Booking, error)
}

type TokenIssuer interface {
	Issue(staff models.Staff) (string, time.Time, error)
}

type ClinicService struct {
	log        *logrus.Entry
	store      Store
	notifier   Notifier
	tokens     TokenIssuer
	bcryptCost int
}

func NewClinicService(log *logrus.Logger, store Store, notifier Notifier, tokens TokenIssuer, bcryptCost int) *ClinicService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	s := ClinicService{
		log:        log.WithField("component", "service"),
		store:      store,
		notifier:   notifier,
		tokens:     tokens,
		bcryptCost: bcryptCost,
	}
	return &s
}

// Login exchanges an email/password pair for a signed session token.
// A correct password on a pending account yields ErrAccountNotActive.
func (s *ClinicService) Login(ctx context.Context, email, password string) (models.TokenResponse, error) {
	staff, err := s.store.StaffByEmail(ctx, email)
	switch {
	case errors.Is(err, pgstore.ErrStaffNotFound):
		return models.TokenResponse{}, models.ErrInvalidCredentials
	case err != nil:
		return models.TokenResponse{}, fmt.Errorf("err getting staff from store: %w", err)
	}
	if err = bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)); err != nil {
		return models.TokenResponse{}, models.ErrInvalidCredentials
	}
	if !staff.Active() {
		return models.TokenResponse{}, models.ErrAccountNotActive
	}
	token, _, err := s.tokens.Issue(staff)
	if err != nil {
		return models.TokenResponse{}, fmt.Errorf("err issuing token: %w", err)
	}
	s.log.Infof("staff %d logged in as %s", staff.ID, staff.Role)
	return models.TokenResponse{AccessToken: token, TokenType: "bearer"}, nil
}

// Signup registers a staff account in pending status.
func (s *ClinicService) Signup(ctx context.Context, req models.StaffRequest) (models.Staff, error) {
	if req.Name == nil || req.Email == nil || req.Password == nil ||
		strings.TrimSpace(*req.Name) == "" || strings.TrimSpace(*req.Email) == "" || *req.Password == "" {
		return models.Staff{}, fmt.Errorf("%w: nome, email and password are required", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.bcryptCost)
	if err != nil {
		return models.Staff{}, fmt.Errorf("err hashing password: %w", err)
	}
	staff, err := s.store.CreateStaff(ctx, models.Staff{
		Name:         strings.TrimSpace(*req.Name),
		Email:        strings.TrimSpace(*req.Email),
		PasswordHash: string(hash),
		Role:         models.RoleStaff,
		Status:       models.StatusPending,
	})
	if err != nil {
		return models.Staff{}, err
	}
	s.log.Infof("staff %d signed up, awaiting approval", staff.ID)
	return staff, nil
}

// SeedAdmin creates the default administrator when the directory has none.
func (s *ClinicService) SeedAdmin(ctx context.Context, name, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("err hashing password: %w", err)
	}
	created, err := s.store.EnsureAdmin(ctx, models.Staff{Name: name, Email: email, PasswordHash: string(hash)})
	if err != nil {
		return err
	}
	if created {
		s.log.Infof("default admin %s created", email)
	}
	return nil
}

// CurrentStaff reloads the account behind a token subject.
func (s *ClinicService) CurrentStaff(ctx context.Context, email string) (models.Staff, error) {
	return s.store.StaffByEmail(ctx, email)
}

func (s *ClinicService) ListStaff(ctx context.Context) ([]models.Staff, error) {
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("err getting staff from store: %w", err)
	}
	return staff, nil
}

func (s *ClinicService) ApproveStaff(ctx context.Context, id int) (models.Staff, error) {
	staff, err := s.store.ApproveStaff(ctx, id)
	if err != nil {
		return models.Staff{}, err
	}
	s.log.Infof("staff %d approved", id)
	return staff, nil
}

func (s *ClinicService) RemoveStaff(ctx context.Context, id int) (models.Staff, error) {
	staff, err := s.store.DeleteStaff(ctx, id)
	if err != nil {
		return models.Staff{}, err
	}
	s.log.Infof("staff %d removed", id)
	return staff, nil
}

func (s *ClinicService) ListClinics(ctx context.Context) ([]models.Clinic, error) {
	return s.store.ListClinics(ctx)
}

func (s *ClinicService) ListBookings(ctx context.Context, clinicID *int) ([]models.Booking, error) {
	return s.store.ListBookings(ctx, clinicID)
}

// Notify delivers one message to a patient chat. It never retries.
// Without a configured notifier every call fails with ErrNoNotifier.
func (s *ClinicService) Notify(ctx context.Context, n models.Notification) error {
	if strings.TrimSpace(n.TelegramID) == "" || strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: telegram_id and mensagem are required", ErrValidation)
	}
	if s.notifier == nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return ErrNoNotifier
	}
	err := s.notifier.Notify(ctx, n.TelegramID, fmt.Sprintf(notificationTemplate, n.Message))
	switch {
	case errors.Is(err, notifier.ErrChatNotFound):
		metrics.NotificationsSent.WithLabelValues("unreachable").Inc()
		return fmt.Errorf("%w: %v", ErrChatUnreachable, err)
	case err != nil:
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	return nil
}
