package audit

import (
	"context"
	"time"

	"fractionbot/internal/storage"

	"go.uber.org/zap"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

// Log persists one audit entry and mirrors it to the notifier. The store
// write is awaited; a failure is logged rather than silently dropped.
func (l *Logger) Log(ctx context.Context, actorID, action, targetKind, targetID, details string) {
	entry := storage.AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetKind: targetKind,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  time.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Error("audit write failed", zap.String("action", action), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("actor_id", actorID),
		zap.String("action", action),
		zap.String("target_kind", targetKind),
		zap.String("target_id", targetID),
		zap.String("details", details))
}
