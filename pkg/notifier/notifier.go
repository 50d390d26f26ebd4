package notifier

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrChatNotFound = errors.New("chat not found")

type Sent struct {
	ChatID  string
	Message string
}

// DummyNotifier logs and records sends instead of delivering them.
type DummyNotifier struct {
	log *logrus.Entry

	mu   sync.Mutex
	sent []Sent
	fail map[string]error
}

func NewDummyNotifier(log *logrus.Logger) *DummyNotifier {
	return &DummyNotifier{
		log:  log.WithField("component", "notifier"),
		fail: make(map[string]error),
	}
}

// FailFor makes every send to chatID return err.
func (n *DummyNotifier) FailFor(chatID string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail[chatID] = err
}

func (n *DummyNotifier) Notify(_ context.Context, chatID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.fail[chatID]; ok {
		return err
	}
	n.sent = append(n.sent, Sent{ChatID: chatID, Message: message})
	n.log.Infof("notifying chat %s (%d bytes)", chatID, len(message))
	return nil
}

func (n *DummyNotifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}
