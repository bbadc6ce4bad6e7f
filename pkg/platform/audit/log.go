package audit

import (
	"context"
	"log/slog"

	"backoffice/pkg/requestcontext"
)

// Log writes an audit line to the structured logger and, when an emitter is
// configured, publishes the event. Publishing failures are logged and
// swallowed; audit never blocks the calling flow.
func Log(ctx context.Context, logger *slog.Logger, emitter Emitter, event Event) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if logger != nil {
		args := []any{"event", event.Action, "log_type", "audit", "category", string(event.Category)}
		if event.UserID != "" {
			args = append(args, "user_id", event.UserID)
		}
		if event.Provider != "" {
			args = append(args, "provider", event.Provider)
		}
		if event.Reason != "" {
			args = append(args, "reason", event.Reason)
		}
		if event.Device != "" {
			args = append(args, "device", event.Device)
		}
		if event.RequestID != "" {
			args = append(args, "request_id", event.RequestID)
		}
		logger.InfoContext(ctx, event.Action, args...)
	}

	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
