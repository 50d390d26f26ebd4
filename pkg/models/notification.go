package models

type Notification struct {
	TelegramID string `json:"telegram_id"`
	Message    string `json:"mensagem"`
}
