package audit

import (
	"context"
	"time"

	"levelsmith/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

// Event names recorded by the leveling subsystem.
const (
	EventLevelUp           = "level_up"
	EventRoleGranted       = "level_role_granted"
	EventRoleGrantFailed   = "level_role_failed"
	EventXPSet             = "xp_set"
	EventXPRemoved         = "xp_removed"
	EventUserReset         = "user_reset"
	EventGuildReset        = "guild_reset"
	EventMultiplierSet     = "multiplier_set"
	EventMultiplierRemoved = "multiplier_removed"
	EventCurveSet          = "curve_set"
)

// Logger records leveling activity to the store and the process log, and
// optionally echoes entries to a guild channel via the notifier.
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

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddAuditLog(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("activity", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}
