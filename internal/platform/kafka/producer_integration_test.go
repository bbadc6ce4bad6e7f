//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"backoffice/internal/platform/config"
	"backoffice/internal/platform/kafka"
	"backoffice/internal/platform/logger"
	audit "backoffice/pkg/platform/audit"
	auditkafka "backoffice/pkg/platform/audit/store/kafka"
	"backoffice/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	broker   string
	producer *kafka.Producer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T()).Broker
	p, err := kafka.NewProducer(context.Background(), config.KafkaConfig{
		Brokers:  []string{s.broker},
		ClientID: "backoffice-test",
	}, logger.Discard())
	s.Require().NoError(err)
	s.producer = p
}

func (s *ProducerSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *ProducerSuite) TestAuditEventsReachTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "backoffice.auth.audit.test"
	s.Require().NoError(s.producer.EnsureTopics(ctx, topic))
	s.Require().NoError(s.producer.EnsureTopics(ctx, topic), "creating an existing topic is not an error")

	store := auditkafka.New(s.producer, topic)
	s.Require().NoError(store.Append(ctx, audit.Event{
		Category: audit.CategorySecurity,
		UserID:   "user-42",
		Action:   string(audit.EventTwoFactorExhausted),
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("user-42", string(records[0].Key))
	s.Equal(string(audit.EventTwoFactorExhausted), got.Action)
}
