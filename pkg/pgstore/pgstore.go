package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/pkg/metrics"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

//go:embed migrations
var migrations embed.FS

const retries = 3

const uniqueViolation = "23505"

type Store struct {
	log *logrus.Entry
	db  *sqlx.DB
}

var (
	ErrStaffNotFound = fmt.Errorf("staff not found")
	ErrEmailTaken    = fmt.Errorf("email already registered")
)

func NewStore(ctx context.Context, log *logrus.Logger, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		log: log.WithField("component", "pgstore"),
		db:  db,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(direction migrate.MigrationDirection) error {
	assetDir := func() func(string) ([]string, error) {
		return func(path string) ([]string, error) {
			dirEntry, er := migrations.ReadDir(path)
			if er != nil {
				return nil, er
			}
			entries := make([]string, 0)
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}

			return entries, nil
		}
	}()
	asset := migrate.AssetMigrationSource{
		Asset:    migrations.ReadFile,
		AssetDir: assetDir,
		Dir:      "migrations",
	}
	n, err := migrate.Exec(s.db.DB, "postgres", asset, direction)
	if err != nil {
		return err
	}
	s.log.Infof("applied %d migrations", n)
	return nil
}

func (s *Store) observe(method string, started time.Time, err error) {
	metrics.PgDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		metrics.PgErrCount.WithLabelValues(method).Inc()
	}
}

func (s *Store) StaffByEmail(ctx context.Context, email string) (models.Staff, error) {
	var staff models.Staff
	query := `
SELECT id, nome, email, hashed_password, role, status, created_at FROM funcionarios
WHERE email = $1;`
	var err error
	defer func(started time.Time) { s.observe("StaffByEmail", started, err) }(time.Now())
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &staff, query, email)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Staff{}, ErrStaffNotFound
		case err != nil:
			continue
		}
		return staff, nil
	}
	return models.Staff{}, fmt.Errorf("err getting staff %q: %w", email, err)
}

func (s *Store) CreateStaff(ctx context.Context, staff models.Staff) (models.Staff, error) {
	var created models.Staff
	query := `
INSERT INTO funcionarios (nome, email, hashed_password, role, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, nome, email, hashed_password, role, status, created_at;`
	var err error
	defer func(started time.Time) { s.observe("CreateStaff", started, err) }(time.Now())
	err = s.db.GetContext(ctx, &created, query, staff.Name, staff.Email, staff.PasswordHash, staff.Role, staff.Status)
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == uniqueViolation:
		return models.Staff{}, ErrEmailTaken
	case err != nil:
		return models.Staff{}, fmt.Errorf("err creating staff: %w", err)
	}
	return created, nil
}

// EnsureAdmin inserts staff only when no admin account exists yet.
func (s *Store) EnsureAdmin(ctx context.Context, staff models.Staff) (bool, error) {
	query := `
INSERT INTO funcionarios (nome, email, hashed_password, role, status)
SELECT $1, $2, $3, 'admin', 'active'
WHERE NOT EXISTS (SELECT 1 FROM funcionarios WHERE role = 'admin')
ON CONFLICT (email) DO NOTHING;`
	var err error
	defer func(started time.Time) { s.observe("EnsureAdmin", started, err) }(time.Now())
	res, err := s.db.ExecContext(ctx, query, staff.Name, staff.Email, staff.PasswordHash)
	if err != nil {
		return false, fmt.Errorf("err seeding admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("err seeding admin: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]models.Staff, error) {
	var staff []models.Staff
	query := `
SELECT id, nome, email, hashed_password, role, status, created_at FROM funcionarios
ORDER BY id;`
	var err error
	defer func(started time.Time) { s.observe("ListStaff", started, err) }(time.Now())
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &staff, query); err != nil {
			continue
		}
		return staff, nil
	}
	return nil, fmt.Errorf("err listing staff: %w", err)
}

func (s *Store) ApproveStaff(ctx context.Context, id int) (models.Staff, error) {
	var approved models.Staff
	query := `
UPDATE funcionarios
    SET status = 'active'
WHERE id = $1
RETURNING id, nome, email, hashed_password, role, status, created_at;`
	var err error
	defer func(started time.Time) { s.observe("ApproveStaff", started, err) }(time.Now())
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &approved, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Staff{}, ErrStaffNotFound
		case err != nil:
			continue
		}
		return approved, nil
	}
	return models.Staff{}, fmt.Errorf("err approving staff %d: %w", id, err)
}

func (s *Store) DeleteStaff(ctx context.Context, id int) (models.Staff, error) {
	var deleted models.Staff
	query := `
DELETE FROM funcionarios
WHERE id = $1
RETURNING id, nome, email, hashed_password, role, status, created_at;`
	var err error
	defer func(started time.Time) { s.observe("DeleteStaff", started, err) }(time.Now())
	err = s.db.GetContext(ctx, &deleted, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Staff{}, ErrStaffNotFound
	case err != nil:
		return models.Staff{}, fmt.Errorf("err deleting staff %d: %w", id, err)
	}
	return deleted, nil
}

func (s *Store) ListClinics(ctx context.Context) ([]models.Clinic, error) {
	var clinics []models.Clinic
	var err error
	defer func(started time.Time) { s.observe("ListClinics", started, err) }(time.Now())
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &clinics, `SELECT id, nome, zona FROM clinicas ORDER BY id`); err != nil {
			continue
		}
		return clinics, nil
	}
	return nil, fmt.Errorf("err listing clinics: %w", err)
}

// ListBookings returns reserved appointments ordered by time, optionally for one clinic.
func (s *Store) ListBookings(ctx context.Context, clinicID *int) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `
SELECT a.id AS id_agendamento, a.data_hora, COALESCE(u.nome, '') AS nome_paciente, u.telegram_id,
       c.nome AS nome_clinica, c.zona AS zona_clinica
FROM agendamentos a
         JOIN usuarios u ON a.id_usuario = u.id
         JOIN clinicas c ON a.id_clinica = c.id
WHERE a.status = 'reservado'
  AND ($1::INTEGER IS NULL OR a.id_clinica = $1)
ORDER BY a.data_hora;`
	var err error
	defer func(started time.Time) { s.observe("ListBookings", started, err) }(time.Now())
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &bookings, query, clinicID); err != nil {
			continue
		}
		return bookings, nil
	}
	return nil, fmt.Errorf("err listing bookings: %w", err)
}

func (s *Store) ResetTables(ctx context.Context, tables []string) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE TABLE `+strings.Join(tables, `, `)+` CASCADE`)
	if err != nil {
		return err
	}
	for _, table := range tables {
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`ALTER SEQUENCE %s_id_seq RESTART`, table))
		if err != nil {
			return err
		}
	}
	return nil
}

// ExecContext is exposed for test fixtures that seed bot-owned tables.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}
