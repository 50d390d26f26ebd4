package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	tele "gopkg.in/telebot.v3"

	"github.com/pershin-daniil/clinicconsole/pkg/notifier"
)

// chat addresses a Telegram chat by numeric id or @username.
type chat string

func (c chat) Recipient() string {
	return string(c)
}

type Notifier struct {
	log *logrus.Entry
	bot *tele.Bot
}

func NewNotifier(log *logrus.Logger, bot *tele.Bot) *Notifier {
	return &Notifier{
		log: log.WithField("component", "telegram"),
		bot: bot,
	}
}

// NewBot builds a send-only bot. apiURL may be empty for the public Bot API.
func NewBot(token, apiURL string, offline bool) (*tele.Bot, error) {
	config := tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: offline,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
	b, err := tele.NewBot(config)
	if err != nil {
		return nil, fmt.Errorf("new bot faild: %w", err)
	}
	return b, nil
}

// Notify sends message as Markdown to chatID. It makes exactly one Bot API call.
func (n *Notifier) Notify(_ context.Context, chatID, message string) error {
	if _, err := n.bot.Send(chat(chatID), message, tele.ModeMarkdown); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "chat not found") {
			return fmt.Errorf("%w: %v", notifier.ErrChatNotFound, err)
		}
		return fmt.Errorf("tg send message faild: %w", err)
	}
	n.log.Infof("notification delivered to chat %s", chatID)
	return nil
}
