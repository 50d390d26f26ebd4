package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

type StoreSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreSuite) SetupSuite() {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		s.T().Skip("PG_DSN is not set")
	}
	var err error
	s.store, err = NewStore(context.Background(), logrus.New(), dsn)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Migrate(migrate.Up))
}

func (s *StoreSuite) TearDownSuite() {
	if s.store != nil {
		s.Require().NoError(s.store.Close())
	}
}

func (s *StoreSuite) SetupTest() {
	err := s.store.ResetTables(context.Background(), []string{"agendamentos", "usuarios", "funcionarios"})
	s.Require().NoError(err)
}

func (s *StoreSuite) createStaff(email string) models.Staff {
	s.T().Helper()
	staff, err := s.store.CreateStaff(context.Background(), models.Staff{
		Name:         "Ana",
		Email:        email,
		PasswordHash: "hash",
		Role:         models.RoleStaff,
		Status:       models.StatusPending,
	})
	s.Require().NoError(err)
	return staff
}

func (s *StoreSuite) TestCreateAndApprove() {
	ctx := context.Background()
	created := s.createStaff("ana@clinica.com")
	s.Require().NotZero(created.ID)
	s.Require().Equal(models.StatusPending, created.Status)

	_, err := s.store.CreateStaff(ctx, models.Staff{Name: "x", Email: "ana@clinica.com", PasswordHash: "h", Role: models.RoleStaff, Status: models.StatusPending})
	s.Require().ErrorIs(err, ErrEmailTaken)

	approved, err := s.store.ApproveStaff(ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.StatusActive, approved.Status)

	byEmail, err := s.store.StaffByEmail(ctx, "ana@clinica.com")
	s.Require().NoError(err)
	s.Require().True(byEmail.Active())

	_, err = s.store.ApproveStaff(ctx, created.ID+100)
	s.Require().ErrorIs(err, ErrStaffNotFound)
}

func (s *StoreSuite) TestDeleteStaff() {
	ctx := context.Background()
	created := s.createStaff("ana@clinica.com")
	_, err := s.store.DeleteStaff(ctx, created.ID)
	s.Require().NoError(err)
	_, err = s.store.DeleteStaff(ctx, created.ID)
	s.Require().ErrorIs(err, ErrStaffNotFound)
	_, err = s.store.StaffByEmail(ctx, "ana@clinica.com")
	s.Require().ErrorIs(err, ErrStaffNotFound)
}

func (s *StoreSuite) TestEnsureAdminOnce() {
	ctx := context.Background()
	admin := models.Staff{Name: "Admin", Email: "admin@clinica.com", PasswordHash: "h"}
	created, err := s.store.EnsureAdmin(ctx, admin)
	s.Require().NoError(err)
	s.Require().True(created)

	admin.Email = "other@clinica.com"
	created, err = s.store.EnsureAdmin(ctx, admin)
	s.Require().NoError(err)
	s.Require().False(created)

	staff, err := s.store.ListStaff(ctx)
	s.Require().NoError(err)
	s.Require().Len(staff, 1)
	s.Require().Equal(models.RoleAdmin, staff[0].Role)
}

func (s *StoreSuite) TestListBookings() {
	ctx := context.Background()
	clinics, err := s.store.ListClinics(ctx)
	s.Require().NoError(err)
	s.Require().NotEmpty(clinics)

	_, err = s.store.ExecContext(ctx, `INSERT INTO usuarios (telegram_id, nome) VALUES ('@carlos_o', 'Carlos')`)
	s.Require().NoError(err)
	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	_, err = s.store.ExecContext(ctx, `
INSERT INTO agendamentos (id_clinica, id_usuario, data_hora, status)
VALUES ($1, 1, $2, 'reservado'), ($1, NULL, $2, 'disponivel')`, clinics[0].ID, at)
	s.Require().NoError(err)

	bookings, err := s.store.ListBookings(ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(bookings, 1)
	s.Require().Equal("@carlos_o", bookings[0].TelegramID)
	s.Require().Equal("Carlos", bookings[0].PatientName)
	s.Require().Equal(clinics[0].Name, bookings[0].ClinicName)
	s.Require().True(at.Equal(bookings[0].ScheduledAt))

	other := clinics[0].ID + 1000
	bookings, err = s.store.ListBookings(ctx, &other)
	s.Require().NoError(err)
	s.Require().Empty(bookings)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}
