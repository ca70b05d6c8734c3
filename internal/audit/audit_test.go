package audit

import (
	"context"
	"testing"

	"levelsmith/internal/storage"

	"go.uber.org/zap"
)

func TestLogNotifies(t *testing.T) {
	logger := NewLogger(nil, zap.NewNop())

	var got storage.AuditLog
	logger.SetNotifier(func(ctx context.Context, entry storage.AuditLog) {
		got = entry
	})

	logger.Log(context.Background(), LevelInfo, "g1", "u1", EventLevelUp, "level=5")
	if got.Event != EventLevelUp || got.GuildID != "g1" || got.UserID != "u1" {
		t.Fatalf("notifier got wrong entry: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected a timestamp")
	}
}
