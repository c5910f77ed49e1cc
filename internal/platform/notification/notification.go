// Package notification renders message templates and delivers them over
// email or SMS through pluggable senders.
package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Channel is the delivery channel of a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) Valid() bool { return c == ChannelEmail || c == ChannelSMS }

var ErrUnsupportedChannel = errors.New("notification: unsupported channel")

// Message is a single rendered outbound message.
type Message struct {
	Channel Channel
	To      string
	Subject string
	Body    string
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

var placeholder = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Render replaces {{key}} placeholders with values from data. Unknown keys are
// left as-is.
func Render(text string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := strings.TrimSpace(m[2 : len(m)-2])
		if v, ok := data[key]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct keys referenced by text, in order of
// first appearance.
func Placeholders(text string) []string {
	var keys []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher routes messages to the sender for their channel, retrying
// transient failures.
type Dispatcher struct {
	email    EmailSender
	sms      SMSSender
	attempts int
	backoff  time.Duration
}

func NewDispatcher(email EmailSender, sms SMSSender, attempts int, backoff time.Duration) *Dispatcher {
	if attempts < 1 {
		attempts = 1
	}
	return &Dispatcher{email: email, sms: sms, attempts: attempts, backoff: backoff}
}

func (d *Dispatcher) Send(ctx context.Context, m Message) error {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.sendOnce(ctx, m); err == nil || errors.Is(err, ErrUnsupportedChannel) {
			return err
		}
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("send %s to %s after %d attempts: %w", m.Channel, m.To, d.attempts, err)
}

func (d *Dispatcher) sendOnce(ctx context.Context, m Message) error {
	switch m.Channel {
	case ChannelEmail:
		return d.email.SendEmail(ctx, m.To, m.Subject, m.Body)
	case ChannelSMS:
		return d.sms.SendSMS(ctx, m.To, m.Body)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, m.Channel)
	}
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes messages to the log instead of delivering them. It is the
// default when no provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Int("body_len", len(body)).Msg("message sent")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("channel", "sms").Str("to", to).Int("body_len", len(body)).Msg("message sent")
	return nil
}

// Recorder keeps sent messages in memory. Destinations listed in Fail get an
// error instead.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Fail map[string]error
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.Fail[m.To]; ok {
		return err
	}
	r.sent = append(r.sent, m)
	return nil
}

func (r *Recorder) SendEmail(_ context.Context, to, subject, body string) error {
	return r.record(Message{Channel: ChannelEmail, To: to, Subject: subject, Body: body})
}

func (r *Recorder) SendSMS(_ context.Context, to, body string) error {
	return r.record(Message{Channel: ChannelSMS, To: to, Body: body})
}

// Sent returns a copy of the delivered messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
