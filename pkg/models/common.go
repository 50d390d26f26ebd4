package models

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account not active")
)

type Role string

const (
	RoleAdmin Role = `admin`
	RoleStaff Role = `funcionario`
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Claims is the payload of a session token. Subject holds the account email.
type Claims struct {
	jwt.RegisteredClaims
	Role Role   `json:"role"`
	Name string `json:"name"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
