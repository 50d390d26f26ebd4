package console

import (
	"time"

	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

// View models rendered as JSON by the console.

type IndexView struct {
	Title    string `json:"title"`
	LoggedIn bool   `json:"logged_in"`
	Home     string `json:"home"`
}

type LoginView struct {
	Error string `json:"error,omitempty"`
	// Kind tells a bad password apart from an account awaiting approval.
	Kind   string `json:"kind,omitempty"`
	Notice string `json:"notice,omitempty"`
}

type AdminView struct {
	Name    string         `json:"nome"`
	Staff   []models.Staff `json:"funcionarios"`
	Pending int            `json:"pendentes"`
	Banner  string         `json:"banner,omitempty"`
}

type StaffView struct {
	Name        string           `json:"nome"`
	Role        models.Role      `json:"role"`
	ClinicID    *int             `json:"clinica_id,omitempty"`
	Clinics     []models.Clinic  `json:"clinicas"`
	Bookings    []models.Booking `json:"consultas"`
	Composition Composition      `json:"composicao"`
	Banner      string           `json:"banner,omitempty"`
}

type ProfileView struct {
	Name      string      `json:"nome"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expira_em"`
}
