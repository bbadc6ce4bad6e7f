// Package tokenstore is the single source of truth for the current
// authenticated session. It keeps an in-memory snapshot in front of a durable
// key-value backend and evaluates expiry lazily on every read.
package tokenstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"backoffice/internal/auth/models"
	jwttoken "backoffice/internal/jwt_token"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/sentinel"
	"backoffice/pkg/requestcontext"
)

const (
	// DefaultMaxAge bounds sessions whose access token carries no exp claim.
	DefaultMaxAge = 24 * time.Hour
	DefaultKey    = "backoffice:session:current"
)

// Durable is the persistence collaborator. Load returns sentinel.ErrNotFound
// when nothing is stored.
type Durable interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Recorder receives store metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	IncrementEviction(cause string)
	SetSessionActive(active bool)
}

// RestoreStatus explains a Restore result.
type RestoreStatus string

const (
	RestoreRestored    RestoreStatus = "restored"
	RestoreAbsent      RestoreStatus = "absent"
	RestoreExpired     RestoreStatus = "expired"
	RestoreCorrupt     RestoreStatus = "corrupt"
	RestoreUnavailable RestoreStatus = "unavailable"
)

// Store serializes writers with a mutex; readers take lock-free snapshots.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[models.AuthSession]
	durable Durable
	key     string
	maxAge  time.Duration
	logger  *slog.Logger
	metrics Recorder
}

// Option configures a Store.
type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

func New(durable Durable, opts ...Option) *Store {
	s := &Store{
		durable: durable,
		key:     DefaultKey,
		maxAge:  DefaultMaxAge,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the current session if one is committed and not
// expired. An expired session is cleared before Get reports absence.
func (s *Store) Get(ctx context.Context) (*models.AuthSession, bool) {
	snap := s.current.Load()
	if snap == nil {
		return nil, false
	}
	if !s.Expired(snap, requestcontext.Now(ctx)) {
		return snap.Clone(), true
	}
	s.evict(ctx, snap, "expired")
	return nil, false
}

// Snapshot returns the last committed session without evaluating expiry.
func (s *Store) Snapshot() *models.AuthSession {
	return s.current.Load().Clone()
}

// Set validates and commits a session. The durable write happens before the
// cache swap, both under the writer lock; on failure nothing changes.
func (s *Store) Set(ctx context.Context, session *models.AuthSession) error {
	return s.commit(ctx, session, nil)
}

// Replace commits next only while the cached session is still prev, matched
// by user and access token. A session cleared or replaced in the meantime
// yields CodeConflict and is left alone.
func (s *Store) Replace(ctx context.Context, prev, next *models.AuthSession) error {
	if prev == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "previous session is required")
	}
	return s.commit(ctx, next, func(cur *models.AuthSession) bool {
		return sameSession(cur, prev)
	})
}

// Discard evicts the session with the given cause, but only while it is
// still prev.
func (s *Store) Discard(ctx context.Context, prev *models.AuthSession, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameSession(s.current.Load(), prev) {
		return
	}
	s.dropLocked(ctx, cause)
}

func sameSession(a, b *models.AuthSession) bool {
	return a != nil && b != nil && a.User.ID == b.User.ID && a.Tokens.AccessToken == b.Tokens.AccessToken
}

func (s *Store) commit(ctx context.Context, session *models.AuthSession, precondition func(*models.AuthSession) bool) error {
	if err := session.Validate(); err != nil {
		return err
	}
	payload, err := encode(session)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode session")
	}
	committed := session.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if precondition != nil && !precondition(s.current.Load()) {
		return dErrors.New(dErrors.CodeConflict, "session changed concurrently")
	}
	if err := s.durable.Save(ctx, s.key, payload); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
	}
	s.current.Store(committed)
	s.recordActive(true)
	return nil
}

// Clear drops the cached session unconditionally, then deletes the durable
// copy. When the delete fails a tombstone is written over the key so Restore
// cannot bring the session back. Only a failure of both is returned, and it
// never leaves the cache populated.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(nil)
	s.recordActive(false)
	return s.erasePersistedLocked(ctx)
}

func (s *Store) erasePersistedLocked(ctx context.Context) error {
	err := s.durable.Delete(ctx, s.key)
	if err == nil {
		return nil
	}
	tombstone, terr := encodeTombstone()
	if terr == nil {
		terr = s.durable.Save(ctx, s.key, tombstone)
	}
	if terr != nil {
		return dErrors.Wrap(errors.Join(err, terr), dErrors.CodeInternal, "delete persisted session")
	}
	s.logger.WarnContext(ctx, "persisted session could not be deleted, wrote tombstone", "error", err)
	return nil
}

// Restore loads the durable session into the cache. It never fails: corrupt
// or expired data is deleted and reported absent.
func (s *Store) Restore(ctx context.Context) (*models.AuthSession, bool) {
	session, status := s.RestoreWithStatus(ctx)
	return session, status == RestoreRestored
}

// RestoreWithStatus is Restore with the reason for an absent result.
func (s *Store) RestoreWithStatus(ctx context.Context) (*models.AuthSession, RestoreStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.durable.Load(ctx, s.key)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.current.Store(nil)
		s.recordActive(false)
		return nil, RestoreAbsent
	}
	if err != nil {
		s.logger.WarnContext(ctx, "session store unavailable during restore", "error", err)
		return nil, RestoreUnavailable
	}

	session, err := decode(raw)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.current.Store(nil)
		s.recordActive(false)
		if derr := s.durable.Delete(ctx, s.key); derr != nil {
			s.logger.WarnContext(ctx, "failed to delete session tombstone", "error", derr)
		}
		return nil, RestoreAbsent
	}
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt persisted session",
			"error", err,
			"code", dErrors.CodeCorruptPersistedSession,
		)
		s.dropLocked(ctx, "corrupt")
		return nil, RestoreCorrupt
	}
	if s.Expired(session, requestcontext.Now(ctx)) {
		s.dropLocked(ctx, "expired")
		return nil, RestoreExpired
	}

	s.current.Store(session)
	s.recordActive(true)
	return session.Clone(), RestoreRestored
}

// ExpiresAt is the effective expiry: the earlier of the access token's exp
// claim and TokenSet.ExpiresAt. Without an exp claim the session is capped at
// CreatedAt plus the configured max age.
func (s *Store) ExpiresAt(session *models.AuthSession) time.Time {
	declared := session.Tokens.ExpiresAt
	limit, ok := jwttoken.ParseExpiry(session.Tokens.AccessToken)
	if !ok {
		limit = session.CreatedAt.Add(s.maxAge)
	}
	if !declared.IsZero() && declared.Before(limit) {
		return declared
	}
	return limit
}

// Expired reports whether session is past its effective expiry at now.
func (s *Store) Expired(session *models.AuthSession, now time.Time) bool {
	return !now.Before(s.ExpiresAt(session))
}

// evict clears snap only if it is still the committed session, so a
// concurrent Set is never undone by a stale expiry check.
func (s *Store) evict(ctx context.Context, snap *models.AuthSession, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current.CompareAndSwap(snap, nil) {
		return
	}
	s.dropLocked(ctx, cause)
}

func (s *Store) dropLocked(ctx context.Context, cause string) {
	s.current.Store(nil)
	s.recordActive(false)
	if s.metrics != nil {
		s.metrics.IncrementEviction(cause)
	}
	if err := s.erasePersistedLocked(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to delete persisted session", "cause", cause, "error", err)
	}
}

func (s *Store) recordActive(active bool) {
	if s.metrics != nil {
		s.metrics.SetSessionActive(active)
	}
}
