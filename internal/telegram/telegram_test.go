package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pershin-daniil/clinicconsole/pkg/notifier"
)

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *Notifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	bot, err := NewBot("123:abc", srv.URL, true)
	require.NoError(t, err)
	return NewNotifier(logrus.New(), bot)
}

func TestNotifySendsMarkdownOnce(t *testing.T) {
	var calls []sendMessage
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/bot123:abc/sendMessage"))
		var msg sendMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		calls = append(calls, msg)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`))
	})

	err := n.Notify(context.Background(), "@carlos_o", "Sua consulta foi confirmada")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.Equal(t, "@carlos_o", calls[0].ChatID)
	require.Equal(t, "Sua consulta foi confirmada", calls[0].Text)
	require.Equal(t, "Markdown", calls[0].ParseMode)
}

func TestNotifyChatNotFound(t *testing.T) {
	calls := 0
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	err := n.Notify(context.Background(), "42", "oi")
	require.ErrorIs(t, err, notifier.ErrChatNotFound)
	require.Equal(t, 1, calls)
}

func TestNotifyOtherFailure(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := n.Notify(context.Background(), "42", "oi")
	require.Error(t, err)
	require.NotErrorIs(t, err, notifier.ErrChatNotFound)
}
