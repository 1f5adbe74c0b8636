package telegram

import "context"

// Message is an HTML-formatted chat message with an optional link button.
type Message struct {
	ChatID     string
	Text       string
	ButtonText string
	ButtonURL  string
}

type Provider interface {
	SendMessage(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) SendMessage(ctx context.Context, msg Message) error {
	return nil
}
