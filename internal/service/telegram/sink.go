// Package telegram delivers operator alerts through the Telegram bot API.
package telegram

import (
	"context"
	"fmt"
	"time"

	drepo "CryptoPull/internal/domain/repository"
	xhttp "CryptoPull/pkg/http"
	applogger "CryptoPull/pkg/logger"
)

const defaultAPIBase = "https://api.telegram.org"

type httpClient interface {
	SendAndParse(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error
}

// Sink posts alerts to a Telegram chat. Delivery runs on its own goroutine
// with a send timeout; a failed delivery is logged and dropped, never surfaced
// to the engine that raised the alert.
type Sink struct {
	apiBase string
	token   string
	chatID  string
	client  httpClient
	log     *applogger.Logger
	timeout time.Duration
}

// Option configures a Sink.
type Option func(*Sink)

// WithAPIBase overrides the Telegram API host, for tests.
func WithAPIBase(base string) Option {
	return func(s *Sink) { s.apiBase = base }
}

// WithSendTimeout bounds a single delivery attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Sink) { s.timeout = d }
}

// NewSink creates a Telegram alert sink for one bot and chat.
func NewSink(token, chatID string, client httpClient, log *applogger.Logger, opts ...Option) *Sink {
	s := &Sink{
		apiBase: defaultAPIBase,
		token:   token,
		chatID:  chatID,
		client:  client,
		log:     log,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sendMessageBody struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Notify implements repository.AlertSink.
func (s *Sink) Notify(severity drepo.Severity, message string) {
	text := fmt.Sprintf("[%s] %s", severity, message)
	go s.deliver(text)
}

func (s *Sink) deliver(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	opts := &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token),
		Body:   sendMessageBody{ChatID: s.chatID, Text: text},
	}
	if err := s.client.SendAndParse(ctx, opts, nil); err != nil {
		s.log.Warn("telegram alert delivery failed", applogger.Error(err))
	}
}
