package analytics

import (
	"context"
	"testing"
	"time"

	"levelsmith/internal/audit"
	"levelsmith/internal/storage"

	"go.uber.org/zap"
)

func TestReport(t *testing.T) {
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	auditLogger := audit.NewLogger(store, zap.NewNop())
	ctx := context.Background()
	auditLogger.Log(ctx, audit.LevelInfo, "g1", "u1", audit.EventLevelUp, "level=2")
	auditLogger.Log(ctx, audit.LevelInfo, "g1", "u2", audit.EventLevelUp, "level=3")
	auditLogger.Log(ctx, audit.LevelInfo, "g1", "", audit.EventMultiplierSet, "role=r1")
	auditLogger.Log(ctx, audit.LevelInfo, "g2", "u1", audit.EventLevelUp, "level=1")

	report, err := New(store).Report(ctx, "g1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 3 {
		t.Fatalf("expected 3 entries, got %d", report.Total)
	}
	if report.ByEvent[audit.EventLevelUp] != 2 {
		t.Fatalf("expected 2 level_up entries, got %d", report.ByEvent[audit.EventLevelUp])
	}
	if report.ByEvent[audit.EventMultiplierSet] != 1 {
		t.Fatalf("expected 1 multiplier_set entry, got %d", report.ByEvent[audit.EventMultiplierSet])
	}
}
