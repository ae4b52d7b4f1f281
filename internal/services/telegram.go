package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"storefront_payments/internal/config"
)

type TelegramService struct {
	token  string
	client *resty.Client
}

func NewTelegramService(cfg config.TelegramConfig) *TelegramService {
	return &TelegramService{
		token:  cfg.BotToken,
		client: resty.New().SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).SetTimeout(10 * time.Second),
	}
}

// NormalizeChatID trims the id and adds the @ prefix to public channel
// usernames. Numeric user and group ids are returned as is.
func NormalizeChatID(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || strings.HasPrefix(chatID, "@") {
		return chatID
	}
	if strings.TrimLeft(chatID, "-0123456789") == "" {
		return chatID
	}
	return "@" + chatID
}

// SendMessage posts text to a chat through the Bot API.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	chatID = NormalizeChatID(chatID)
	if chatID == "" {
		return fmt.Errorf("empty chat id")
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("token", s.token).
		SetBody(map[string]string{
			"chat_id": chatID,
			"text":    text,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode(), result.Description)
	}

	return nil
}
