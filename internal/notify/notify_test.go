package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/pkg/platform/sentinel"
)

type captureProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (p *captureProducer) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

func TestKafkaNotifier_PublishesKeyedByRecipient(t *testing.T) {
	producer := &captureProducer{}
	n := NewKafkaNotifier(producer, "backoffice.notifications")
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := n.Send(context.Background(), Message{
		Channel:  ChannelSMS,
		To:       "+15550001111",
		Template: TemplateTwoFactorCode,
		Params:   map[string]string{"code": "123456"},
	})
	require.NoError(t, err)

	assert.Equal(t, "backoffice.notifications", producer.topic)
	assert.Equal(t, "+15550001111", string(producer.key))
	assert.Equal(t, "sms", producer.headers["channel"])

	var decoded Message
	require.NoError(t, json.Unmarshal(producer.value, &decoded))
	assert.Equal(t, "123456", decoded.Params["code"])
	assert.Equal(t, 2026, decoded.CreatedAt.Year())
}

func TestLogNotifier_WritesTemplate(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), Message{Channel: ChannelEmail, To: "a@b.example", Template: TemplatePasswordReset}))
	assert.Contains(t, buf.String(), `"template":"password_reset"`)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(1)
	require.NoError(t, r.Send(context.Background(), Message{To: "x"}))
	assert.Error(t, r.Send(context.Background(), Message{To: "y"}))

	msg, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "x", msg.To)
	_, ok = r.Next()
	assert.False(t, ok)
}

func TestFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	msg := Message{Channel: ChannelEmail, To: "a@b.example", Template: TemplatePasswordReset, Params: map[string]string{"token": "secret-token"}}

	dev := Fallback(true, logger)
	require.NoError(t, dev.Send(context.Background(), msg))
	assert.True(t, Deliverable(dev))
	assert.Contains(t, buf.String(), "secret-token")

	buf.Reset()
	prod := Fallback(false, logger)
	err := prod.Send(context.Background(), msg)
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.False(t, Deliverable(prod))
	assert.Empty(t, buf.String(), "nothing is written when delivery is refused")
}
