package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/tokens"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrInvalidCredentials = models.ErrInvalidCredentials
	ErrAccountNotActive   = models.ErrAccountNotActive
)

type Kind int

const (
	KindUnavailable Kind = iota
	KindInvalidCredentials
	KindAccountNotActive
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountNotActive:
		return "account_not_active"
	default:
		return "unavailable"
	}
}

// AuthError is a failed credential exchange. Detail is the backend's message, if any.
type AuthError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("login failed (%s): %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("login failed (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Kind == KindInvalidCredentials
	case ErrAccountNotActive:
		return e.Kind == KindAccountNotActive
	}
	return false
}

// Token is the raw session token and the expiry the backend put into it.
type Token struct {
	Raw       string
	ExpiresAt time.Time
}

type Exchanger struct {
	log    *logrus.Entry
	config oauth2.Config
	client *http.Client
}

func NewExchanger(log *logrus.Logger, backendURL string, client *http.Client) *Exchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &Exchanger{
		log: log.WithField("component", "auth"),
		config: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(backendURL, "/") + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// Login exchanges an email and password for a session token. Nothing is
// persisted here.
func (e *Exchanger) Login(ctx context.Context, identifier, secret string) (Token, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return Token{}, ErrMissingCredentials
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	tok, err := e.config.PasswordCredentialsToken(ctx, identifier, secret)
	if err != nil {
		authErr := classify(err)
		e.log.Infof("login for %s refused: %s", identifier, authErr.Kind)
		return Token{}, authErr
	}
	expiresAt, err := decodeExpiry(tok.AccessToken)
	if err != nil {
		return Token{}, &AuthError{Kind: KindUnavailable, Detail: "token inválido recebido do servidor", Err: err}
	}
	return Token{Raw: tok.AccessToken, ExpiresAt: expiresAt}, nil
}

func classify(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return &AuthError{Kind: KindUnavailable, Err: err}
	}
	detail := apiclient.ReadDetail(bytes.NewReader(retrieveErr.Body))
	switch status := retrieveErr.Response.StatusCode; {
	case status == http.StatusUnauthorized:
		return &AuthError{Kind: KindInvalidCredentials, Detail: detail, Err: err}
	case status == http.StatusForbidden:
		return &AuthError{Kind: KindAccountNotActive, Detail: detail, Err: err}
	case status == http.StatusBadRequest && mentionsPending(detail):
		return &AuthError{Kind: KindAccountNotActive, Detail: detail, Err: err}
	default:
		return &AuthError{Kind: KindUnavailable, Detail: detail, Err: err}
	}
}

func mentionsPending(detail string) bool {
	detail = strings.ToLower(detail)
	return strings.Contains(detail, "pendente") || strings.Contains(detail, "inativo") ||
		strings.Contains(detail, "pending") || strings.Contains(detail, "inactive")
}

func decodeExpiry(raw string) (time.Time, error) {
	claims, err := tokens.Decode(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", tokens.ErrInvalidToken)
	}
	return claims.ExpiresAt.Time, nil
}
