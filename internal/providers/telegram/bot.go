package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/novabot503/novacat/internal/config"
	"go.uber.org/zap"
)

var ErrSendFailed = errors.New("telegram_send_failed")

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Bot sends messages through the Telegram Bot API.
type Bot struct {
	apiURL string
	token  string
	client *http.Client
}

func NewBot(cfg config.TelegramConfig) *Bot {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Bot{
		apiURL: apiURL,
		token:  strings.TrimSpace(cfg.Token),
		client: &http.Client{Timeout: timeout},
	}
}

// NewFromConfig returns a NoOpProvider unless both token and owner chat are set.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Telegram.Token == "" || cfg.Telegram.OwnerID == "" {
		log.Named("telegram").Info("telegram notifications disabled")
		return &NoOpProvider{}
	}
	return NewBot(cfg.Telegram)
}

func (b *Bot) SendMessage(ctx context.Context, msg Message) error {
	payload := sendMessageRequest{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		ParseMode: "HTML",
	}
	if msg.ButtonURL != "" {
		payload.ReplyMarkup = &replyMarkup{
			InlineKeyboard: [][]inlineButton{{{Text: msg.ButtonText, URL: msg.ButtonURL}}},
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", b.apiURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		// The request URL carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("%w: %v", ErrSendFailed, urlErr.Err)
		}
		return fmt.Errorf("%w: request failed", ErrSendFailed)
	}
	defer resp.Body.Close()

	var result apiResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result)
	if resp.StatusCode >= http.StatusBadRequest || !result.OK {
		description := strings.TrimSpace(result.Description)
		if description == "" {
			description = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d: %s", ErrSendFailed, resp.StatusCode, description)
	}
	return nil
}
