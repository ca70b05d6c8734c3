package storage

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestUpsertLevelingSettings(t *testing.T) {
	store := newTestStore(t)

	settings := LevelingSettings{
		GuildID:         "g1",
		Enabled:         true,
		XPMin:           10,
		XPMax:           20,
		CooldownSeconds: 30,
		CurveFormula:    "linear",
		CurveMaxLevel:   50,
		LevelRoles:      map[int]string{5: "r5", 10: "r10"},
		AnnounceLevelUp: true,
		LevelUpChannel:  "c1",
		VoiceBilling:    "weighted",
	}

	if err := store.UpsertLevelingSettings(context.Background(), settings); err != nil {
		t.Fatalf("upsert settings: %v", err)
	}

	settings.LevelUpChannel = "c2"
	if err := store.UpsertLevelingSettings(context.Background(), settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	got, err := store.GetLevelingSettings(context.Background(), "g1", LevelingSettings{})
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.LevelUpChannel != "c2" {
		t.Fatalf("expected channel c2, got %q", got.LevelUpChannel)
	}
	if got.CurveFormula != "linear" || got.CooldownSeconds != 30 {
		t.Fatalf("settings did not round trip: %+v", got)
	}
	if got.LevelRoles[5] != "r5" || got.LevelRoles[10] != "r10" {
		t.Fatalf("level roles did not round trip: %+v", got.LevelRoles)
	}
}

func TestGetLevelingSettingsDefaults(t *testing.T) {
	store := newTestStore(t)

	defaults := LevelingSettings{Enabled: true, XPMin: 15, XPMax: 25, CooldownSeconds: 60}
	got, err := store.GetLevelingSettings(context.Background(), "missing", defaults)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if !got.Enabled || got.XPMin != 15 || got.GuildID != "missing" {
		t.Fatalf("expected defaults for unknown guild, got %+v", got)
	}
}

func TestAddXP(t *testing.T) {
	store := newTestStore(t)
	levelFor := func(xp int64) int {
		if xp >= 100 {
			return 1
		}
		return 0
	}

	record, oldLevel, err := store.AddXP(context.Background(), "g1", "u1", 60, levelFor)
	if err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if record.XP != 60 || record.Level != 0 || oldLevel != 0 {
		t.Fatalf("expected 60 xp level 0, got %+v old %d", record, oldLevel)
	}

	record, oldLevel, err = store.AddXP(context.Background(), "g1", "u1", 60, levelFor)
	if err != nil {
		t.Fatalf("add xp again: %v", err)
	}
	if record.XP != 120 || record.Level != 1 || oldLevel != 0 {
		t.Fatalf("expected 120 xp level 1 old 0, got %+v old %d", record, oldLevel)
	}
	if record.Messages != 2 {
		t.Fatalf("expected 2 messages, got %d", record.Messages)
	}
}

func TestRemoveXPFloorsAtZero(t *testing.T) {
	store := newTestStore(t)
	levelFor := func(int64) int { return 0 }

	if _, _, err := store.AddXP(context.Background(), "g1", "u1", 50, levelFor); err != nil {
		t.Fatalf("add xp: %v", err)
	}

	record, err := store.RemoveXP(context.Background(), "g1", "u1", 200, levelFor)
	if err != nil {
		t.Fatalf("remove xp: %v", err)
	}
	if record.XP != 0 {
		t.Fatalf("expected floor at 0, got %d", record.XP)
	}

	record, err = store.RemoveXP(context.Background(), "g1", "nobody", 10, levelFor)
	if err != nil {
		t.Fatalf("remove xp missing user: %v", err)
	}
	if record.Found {
		t.Fatalf("expected no record for unknown user")
	}
}

func TestLeaderboardOrder(t *testing.T) {
	store := newTestStore(t)
	levelFor := func(int64) int { return 0 }

	for user, xp := range map[string]int64{"u1": 300, "u2": 100, "u3": 200} {
		if _, _, err := store.AddXP(context.Background(), "g1", user, xp, levelFor); err != nil {
			t.Fatalf("add xp %s: %v", user, err)
		}
	}

	records, err := store.Leaderboard(context.Background(), "g1", 10, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].UserID != "u1" || records[1].UserID != "u3" || records[2].UserID != "u2" {
		t.Fatalf("wrong order: %s %s %s", records[0].UserID, records[1].UserID, records[2].UserID)
	}
}

func TestResetUser(t *testing.T) {
	store := newTestStore(t)
	levelFor := func(int64) int { return 0 }

	if _, _, err := store.AddXP(context.Background(), "g1", "u1", 50, levelFor); err != nil {
		t.Fatalf("add xp: %v", err)
	}
	if err := store.ResetUser(context.Background(), "g1", "u1"); err != nil {
		t.Fatalf("reset user: %v", err)
	}
	if err := store.ResetUser(context.Background(), "g1", "u1"); err != nil {
		t.Fatalf("reset user twice: %v", err)
	}

	record, err := store.GetLevelRecord(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Found {
		t.Fatalf("expected record gone after reset")
	}
}

func TestGuildStats(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetXP(context.Background(), "g1", "u1", 100, 2); err != nil {
		t.Fatalf("set xp: %v", err)
	}
	if err := store.SetXP(context.Background(), "g1", "u2", 300, 4); err != nil {
		t.Fatalf("set xp: %v", err)
	}

	stats, err := store.GuildStats(context.Background(), "g1")
	if err != nil {
		t.Fatalf("guild stats: %v", err)
	}
	if stats.TotalUsers != 2 || stats.TotalXP != 400 || stats.MaxLevel != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AvgLevel != 3 {
		t.Fatalf("expected average level 3, got %f", stats.AvgLevel)
	}
}

func TestSetLevelCurve(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetLevelCurve(context.Background(), "g1", []int64{0, 100, 250}); err != nil {
		t.Fatalf("set curve: %v", err)
	}

	got, err := store.GetLevelingSettings(context.Background(), "g1", LevelingSettings{})
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if len(got.LevelCurve) != 3 || got.LevelCurve[2] != 250 {
		t.Fatalf("curve did not round trip: %v", got.LevelCurve)
	}
}

func TestAuditLogs(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	entries := []AuditLog{
		{GuildID: "g1", UserID: "u1", Level: "INFO", Event: "level_up", Details: "level=2", CreatedAt: now},
		{GuildID: "g1", UserID: "u2", Level: "WARN", Event: "guild_reset", Details: "", CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, entry := range entries {
		if err := store.AddAuditLog(context.Background(), entry); err != nil {
			t.Fatalf("add audit log: %v", err)
		}
	}

	logs, err := store.ListAuditLogs(context.Background(), "g1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 recent log, got %d", len(logs))
	}
	if logs[0].Event != "level_up" {
		t.Fatalf("expected level_up, got %q", logs[0].Event)
	}
}
