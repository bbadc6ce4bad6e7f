package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention and routing.
type EventCategory string

const (
	// CategorySecurity covers authentication failures, lockouts and
	// step-up outcomes. These feed alerting.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine session lifecycle activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"user_id,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Action    string        `json:"action"`
	Provider  string        `json:"provider,omitempty"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Device    string        `json:"device,omitempty"`
	IP        string        `json:"ip,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	EventLoginSucceeded           AuditEvent = "login_succeeded"
	EventLoginRejected            AuditEvent = "login_rejected"
	EventTwoFactorChallengeIssued AuditEvent = "two_factor_challenge_issued"
	EventTwoFactorVerified        AuditEvent = "two_factor_verified"
	EventTwoFactorFailed          AuditEvent = "two_factor_failed"
	EventTwoFactorExhausted       AuditEvent = "two_factor_exhausted"
	EventTwoFactorAbandoned       AuditEvent = "two_factor_abandoned"
	EventBackupCodeRedeemed       AuditEvent = "backup_code_redeemed"
	EventSessionRestored          AuditEvent = "session_restored"
	EventSessionExpired           AuditEvent = "session_expired"
	EventSessionRefreshed         AuditEvent = "session_refreshed"
	EventSessionCorrupt           AuditEvent = "session_corrupt"
	EventLoggedOut                AuditEvent = "logged_out"
	EventFederatedLogoutFailed    AuditEvent = "federated_logout_failed"
	EventPasswordResetRequested   AuditEvent = "password_reset_requested"
	EventPasswordResetCompleted   AuditEvent = "password_reset_completed"
	EventTwoFactorEnabled         AuditEvent = "two_factor_enabled"
	EventAccountLocked            AuditEvent = "account_locked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventLoginRejected:          CategorySecurity,
	EventTwoFactorFailed:        CategorySecurity,
	EventTwoFactorExhausted:     CategorySecurity,
	EventBackupCodeRedeemed:     CategorySecurity,
	EventSessionCorrupt:         CategorySecurity,
	EventFederatedLogoutFailed:  CategorySecurity,
	EventPasswordResetCompleted: CategorySecurity,
	EventTwoFactorEnabled:       CategorySecurity,
	EventAccountLocked:          CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is the narrow interface services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
