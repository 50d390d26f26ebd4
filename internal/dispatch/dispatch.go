package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pershin-daniil/clinicconsole/internal/apiclient"
	"github.com/pershin-daniil/clinicconsole/pkg/metrics"
	"github.com/pershin-daniil/clinicconsole/pkg/models"
)

const genericReason = "Não foi possível enviar a mensagem. Tente novamente."

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoTarget     = errors.New("no notification target")
)

type Kind int

const (
	Unknown Kind = iota
	TargetUnreachable
	Rejected
)

func (k Kind) String() string {
	switch k {
	case TargetUnreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// DispatchError is a failed send. Reason is shown to the operator as is.
type DispatchError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	return e.Reason
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Target is a patient's messaging address. It can only be taken from an
// existing booking record.
type Target struct {
	chatID      string
	bookingID   int
	patientName string
}

func TargetFromBooking(b models.Booking) Target {
	return Target{
		chatID:      strings.TrimSpace(b.TelegramID),
		bookingID:   b.ID,
		patientName: b.PatientName,
	}
}

func (t Target) ChatID() string      { return t.chatID }
func (t Target) BookingID() int      { return t.bookingID }
func (t Target) PatientName() string { return t.patientName }
func (t Target) IsZero() bool        { return t.chatID == "" }

type Ack struct {
	Target Target
	SentAt time.Time
}

type Sender interface {
	Notify(ctx context.Context, auth apiclient.Authorizer, n models.Notification) error
}

type Dispatcher struct {
	log    *logrus.Entry
	sender Sender
	now    func() time.Time
}

func New(log *logrus.Logger, sender Sender) *Dispatcher {
	return &Dispatcher{
		log:    log.WithField("component", "dispatch"),
		sender: sender,
		now:    time.Now,
	}
}

// Send submits one notification, at most once. Nothing is retried: the
// operator resends deliberately.
func (d *Dispatcher) Send(ctx context.Context, auth apiclient.Authorizer, target Target, body string) (Ack, error) {
	if strings.TrimSpace(body) == "" {
		return Ack{}, ErrEmptyMessage
	}
	if target.IsZero() {
		return Ack{}, ErrNoTarget
	}
	log := d.log.WithField("booking", target.bookingID)
	err := d.sender.Notify(ctx, auth, models.Notification{TelegramID: target.chatID, Message: body})
	if err == nil {
		metrics.DispatchCount.WithLabelValues("sent").Inc()
		log.Infof("notification sent")
		return Ack{Target: target, SentAt: d.now()}, nil
	}
	if errors.Is(err, apiclient.ErrUnauthorized) || errors.Is(err, apiclient.ErrNoSession) {
		metrics.DispatchCount.WithLabelValues("unauthorized").Inc()
		return Ack{}, err
	}
	dispatchErr := classify(err)
	metrics.DispatchCount.WithLabelValues(dispatchErr.Kind.String()).Inc()
	log.Warnf("notification failed (%s): %v", dispatchErr.Kind, err)
	return Ack{}, dispatchErr
}

func classify(err error) *DispatchError {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status == 0 || apiErr.Detail == "" {
		return &DispatchError{Kind: Unknown, Reason: genericReason, Err: err}
	}
	kind := Rejected
	if unreachable(apiErr) {
		kind = TargetUnreachable
	}
	return &DispatchError{Kind: kind, Reason: apiErr.Detail, Err: err}
}

func unreachable(e *apiclient.APIError) bool {
	if e.Status != http.StatusBadRequest && e.Status != http.StatusNotFound {
		return false
	}
	detail := strings.ToLower(e.Detail)
	return strings.Contains(detail, "chat not found") || strings.Contains(detail, "bloqueado") ||
		strings.Contains(detail, "blocked")
}
