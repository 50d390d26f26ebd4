package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
	"github.com/pershin-daniil/clinicconsole/pkg/tokens"
)

// Storage keys of a persisted session.
const (
	KeyAccessToken = "accessToken"
	KeyRole        = "userRole"
	KeyName        = "userName"
	KeySubject     = "userSubject"
	KeyExpiresAt   = "expiresAt"
)

var (
	ErrEmptySessionID = errors.New("empty session id")
	ErrExpired        = errors.New("token already expired")
	ErrUnknownRole    = errors.New("token carries an unknown role")
	ErrNoSubject      = errors.New("token carries no subject")
)

// Session is the decoded identity of a logged-in operator. It is replaced as a
// whole on login and logout and never modified in place.
type Session struct {
	Token     string
	Subject   string
	Role      models.Role
	Name      string
	ExpiresAt time.Time
}

func (s Session) Live(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// Authorize attaches the bearer token. A zero or expired session never
// produces an authorized request.
func (s Session) Authorize(req *http.Request) error {
	if !s.Live(time.Now()) {
		return apiclient.ErrNoSession
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

func (s Session) fields() map[string]string {
	return map[string]string{
		KeyAccessToken: s.Token,
		KeyRole:        string(s.Role),
		KeyName:        s.Name,
		KeySubject:     s.Subject,
		KeyExpiresAt:   strconv.FormatInt(s.ExpiresAt.Unix(), 10),
	}
}

func fromFields(fields map[string]string) (Session, bool) {
	sess := Session{
		Token:   fields[KeyAccessToken],
		Subject: fields[KeySubject],
		Role:    models.Role(fields[KeyRole]),
		Name:    fields[KeyName],
	}
	exp, err := strconv.ParseInt(fields[KeyExpiresAt], 10, 64)
	if err != nil || sess.Token == "" || sess.Subject == "" || !sess.Role.Valid() {
		return Session{}, false
	}
	sess.ExpiresAt = time.Unix(exp, 0)
	return sess, true
}

// Storage persists session fields per browser session id.
type Storage interface {
	Save(ctx context.Context, sid string, fields map[string]string, ttl time.Duration) error
	// Load returns nil fields when nothing is stored under sid.
	Load(ctx context.Context, sid string) (map[string]string, error)
	Delete(ctx context.Context, sid string) (bool, error)
}

// Decoder turns a raw token into claims. Verify with the signing secret
// when the console knows it; otherwise the claims are only decoded.
type Decoder func(raw string) (*models.Claims, error)

func NewDecoder(secret string) Decoder {
	if secret == "" {
		return tokens.Decode
	}
	key := []byte(secret)
	return func(raw string) (*models.Claims, error) {
		return tokens.Verify(raw, key)
	}
}

type Store struct {
	log     *logrus.Entry
	storage Storage
	decode  Decoder
	now     func() time.Time
}

func NewStore(log *logrus.Logger, storage Storage, decode Decoder) *Store {
	if decode == nil {
		decode = tokens.Decode
	}
	return &Store{
		log:     log.WithField("component", "session"),
		storage: storage,
		decode:  decode,
		now:     time.Now,
	}
}

// Set decodes raw and persists it together with the decoded identity.
func (s *Store) Set(ctx context.Context, sid, raw string) (Session, error) {
	if sid == "" {
		return Session{}, ErrEmptySessionID
	}
	sess, err := s.sessionOf(raw)
	if err != nil {
		return Session{}, err
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return Session{}, ErrExpired
	}
	if err = s.storage.Save(ctx, sid, sess.fields(), ttl); err != nil {
		return Session{}, fmt.Errorf("err during saving session: %w", err)
	}
	return sess, nil
}

// Get returns the stored session. Missing, undecodable and expired
// sessions are all reported the same way: ok is false.
func (s *Store) Get(ctx context.Context, sid string) (Session, bool, error) {
	if sid == "" {
		return Session{}, false, nil
	}
	fields, err := s.storage.Load(ctx, sid)
	if err != nil {
		return Session{}, false, fmt.Errorf("err during loading session: %w", err)
	}
	if len(fields) == 0 {
		return Session{}, false, nil
	}
	sess, ok := fromFields(fields)
	if !ok {
		if sess, err = s.sessionOf(fields[KeyAccessToken]); err != nil {
			s.log.Infof("dropping undecodable session: %v", err)
			return Session{}, false, s.drop(ctx, sid)
		}
	}
	if !sess.Live(s.now()) {
		return Session{}, false, s.drop(ctx, sid)
	}
	return sess, true, nil
}

// Clear removes every stored field. It reports whether anything was removed.
func (s *Store) Clear(ctx context.Context, sid string) (bool, error) {
	if sid == "" {
		return false, nil
	}
	removed, err := s.storage.Delete(ctx, sid)
	if err != nil {
		return false, fmt.Errorf("err during clearing session: %w", err)
	}
	return removed, nil
}

func (s *Store) drop(ctx context.Context, sid string) error {
	_, err := s.Clear(ctx, sid)
	return err
}

func (s *Store) sessionOf(raw string) (Session, error) {
	if raw == "" {
		return Session{}, tokens.ErrInvalidToken
	}
	claims, err := s.decode(raw)
	if err != nil {
		return Session{}, err
	}
	if claims.Subject == "" {
		return Session{}, ErrNoSubject
	}
	if !claims.Role.Valid() {
		return Session{}, fmt.Errorf("%w: %q", ErrUnknownRole, claims.Role)
	}
	if claims.ExpiresAt == nil {
		return Session{}, fmt.Errorf("%w: missing exp", tokens.ErrInvalidToken)
	}
	return Session{
		Token:     raw,
		Subject:   claims.Subject,
		Role:      claims.Role,
		Name:      claims.Name,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
