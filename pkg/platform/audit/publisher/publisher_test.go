package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "backoffice/pkg/platform/audit"
	"backoffice/pkg/platform/audit/store/memory"
)

// blockingStore holds Append until release is closed.
type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	actions []string
}

func (s *blockingStore) Append(_ context.Context, e audit.Event) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, e.Action)
	return nil
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("broker down") }

type PublisherSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.InMemoryStore
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemoryStore()
}

func (s *PublisherSuite) TestSynchronousEmitStampsEvent() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	before := time.Now()
	s.Require().NoError(pub.Emit(s.ctx, audit.Event{UserID: "u-1", Action: string(audit.EventSessionCorrupt)}))

	events, err := pub.List(s.ctx, "u-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategorySecurity, events[0].Category)
	s.False(events[0].Timestamp.Before(before))
}

func (s *PublisherSuite) TestExplicitFieldsAreKept() {
	pub := NewPublisher(s.store)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	s.Require().NoError(pub.Emit(s.ctx, audit.Event{
		UserID:    "u-1",
		Action:    string(audit.EventLoginSucceeded),
		Category:  audit.CategorySecurity,
		Timestamp: at,
	}))
	events, err := pub.List(s.ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(at, events[0].Timestamp)
	s.Equal(audit.CategorySecurity, events[0].Category)
}

func (s *PublisherSuite) TestSynchronousStoreErrorIsReturned() {
	pub := NewPublisher(failingStore{})
	s.Error(pub.Emit(s.ctx, audit.Event{Action: string(audit.EventLoggedOut)}))

	_, err := pub.List(s.ctx, "u-1")
	s.Error(err, "store without listing")
}

func (s *PublisherSuite) TestAsyncCloseDrainsInOrder() {
	pub := NewPublisher(s.store, WithAsyncBuffer(16))
	sequence := []audit.AuditEvent{
		audit.EventTwoFactorChallengeIssued,
		audit.EventTwoFactorFailed,
		audit.EventTwoFactorVerified,
		audit.EventLoginSucceeded,
	}
	for _, e := range sequence {
		s.Require().NoError(pub.Emit(s.ctx, audit.Event{UserID: "u-2", Action: string(e)}))
	}
	pub.Close()
	pub.Close()

	want := make([]string, 0, len(sequence))
	for _, e := range sequence {
		want = append(want, string(e))
	}
	s.Equal(want, s.store.Actions("u-2"))
	s.ErrorIs(pub.Emit(s.ctx, audit.Event{Action: string(audit.EventLoggedOut)}), ErrClosed)
}

func (s *PublisherSuite) TestAsyncFullBufferRejects() {
	store := &blockingStore{release: make(chan struct{})}
	pub := NewPublisher(store, WithAsyncBuffer(1))

	s.Require().NoError(pub.Emit(s.ctx, audit.Event{Action: string(audit.EventLoginSucceeded)}))
	s.Eventually(func() bool {
		return pub.Emit(s.ctx, audit.Event{Action: string(audit.EventSessionRefreshed)}) == nil
	}, time.Second, time.Millisecond, "drain picks up the first event, freeing the slot")
	s.ErrorIs(pub.Emit(s.ctx, audit.Event{Action: string(audit.EventLoggedOut)}), ErrBufferFull)

	close(store.release)
	pub.Close()
	s.Equal([]string{string(audit.EventLoginSucceeded), string(audit.EventSessionRefreshed)}, store.actions)
}

func (s *PublisherSuite) TestAsyncErrorsReachHandler() {
	var mu sync.Mutex
	var seen []error
	pub := NewPublisher(failingStore{}, WithAsyncBuffer(4), WithErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, err)
	}))
	s.Require().NoError(pub.Emit(s.ctx, audit.Event{Action: string(audit.EventFederatedLogoutFailed)}))
	pub.Close()

	mu.Lock()
	defer mu.Unlock()
	s.Len(seen, 1)
}

func (s *PublisherSuite) TestConcurrentEmit() {
	pub := NewPublisher(s.store, WithAsyncBuffer(64))
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NoError(pub.Emit(s.ctx, audit.Event{UserID: "u-3", Action: string(audit.EventSessionRestored)}))
		}()
	}
	wg.Wait()
	pub.Close()
	s.Len(s.store.Actions("u-3"), 32)
}
