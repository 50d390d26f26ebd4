package models

import "time"

type Booking struct {
	ID          int       `json:"id_agendamento" db:"id_agendamento"`
	ScheduledAt time.Time `json:"data_hora" db:"data_hora"`
	PatientName string    `json:"nome_paciente" db:"nome_paciente"`
	TelegramID  string    `json:"telegram_id" db:"telegram_id"`
	ClinicName  string    `json:"nome_clinica" db:"nome_clinica"`
	ClinicZone  string    `json:"zona_clinica" db:"zona_clinica"`
}

type Clinic struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"nome" db:"nome"`
	Zone string `json:"zona" db:"zona"`
}
