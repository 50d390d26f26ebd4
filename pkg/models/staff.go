package models

import "time"

type StaffStatus string

const (
	StatusPending StaffStatus = `pending`
	StatusActive  StaffStatus = `active`
)

type StaffRequest struct {
	Name     *string `json:"nome"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type Staff struct {
	ID           int         `json:"id" db:"id"`
	Name         string      `json:"nome" db:"nome"`
	Email        string      `json:"email" db:"email"`
	PasswordHash string      `json:"-" db:"hashed_password"`
	Role         Role        `json:"role" db:"role"`
	Status       StaffStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"-" db:"created_at"`
}

func (s Staff) Active() bool {
	return s.Status == StatusActive
}
