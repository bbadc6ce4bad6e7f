// Package notify delivers out-of-band messages: two-factor codes and password
// reset links. Delivery itself is owned by an external mail/SMS service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backoffice/pkg/platform/sentinel"
)

// Channel is the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Template names the message body the delivery service renders.
type Template string

const (
	TemplateTwoFactorCode Template = "two_factor_code"
	TemplatePasswordReset Template = "password_reset"
)

// Message is one outbound notification.
type Message struct {
	Channel   Channel           `json:"channel"`
	To        string            `json:"to"`
	Template  Template          `json:"template"`
	Params    map[string]string `json:"params,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier sends a message. Implementations must not log secret params.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the logger. Development only: it prints
// codes and tokens so they can be used without a mail service.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	args := []any{"channel", msg.Channel, "to", msg.To, "template", msg.Template}
	for k, v := range msg.Params {
		args = append(args, k, v)
	}
	n.logger.InfoContext(ctx, "notification (development delivery)", args...)
	return nil
}

// ErrNoDelivery is returned by Unavailable.
var ErrNoDelivery = fmt.Errorf("no delivery service configured: %w", sentinel.ErrUnavailable)

// Unavailable refuses every message. It stands in for the delivery service
// outside development, where codes and reset tokens must never reach a log.
type Unavailable struct{}

func (Unavailable) Send(context.Context, Message) error {
	return ErrNoDelivery
}

// Fallback is the notifier used when no delivery service is configured: the
// log in development and Unavailable everywhere else.
func Fallback(development bool, logger *slog.Logger) Notifier {
	if development {
		return NewLogNotifier(logger)
	}
	return Unavailable{}
}

// Deliverable reports whether n can send at all.
func Deliverable(n Notifier) bool {
	if n == nil {
		return false
	}
	_, down := n.(Unavailable)
	return !down
}

// Producer is the subset of the platform Kafka producer used here.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaNotifier hands messages to the delivery service through a topic,
// keyed by recipient.
type KafkaNotifier struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, now: time.Now}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = n.now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	headers := map[string]string{
		"channel":  string(msg.Channel),
		"template": string(msg.Template),
	}
	if err := n.producer.Publish(ctx, n.topic, []byte(msg.To), payload, headers); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Recorder keeps sent messages in memory. Tests read codes from it.
type Recorder struct {
	ch chan Message
}

func NewRecorder(buffer int) *Recorder {
	return &Recorder{ch: make(chan Message, buffer)}
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	select {
	case r.ch <- msg:
		return nil
	default:
		return errRecorderFull
	}
}

// Next returns the oldest unread message, or false if none is queued.
func (r *Recorder) Next() (Message, bool) {
	select {
	case msg := <-r.ch:
		return msg, true
	default:
		return Message{}, false
	}
}

var errRecorderFull = errors.New("recorder buffer full")
