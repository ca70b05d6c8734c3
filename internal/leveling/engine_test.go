package leveling

import (
	"context"
	"testing"
	"time"

	"levelsmith/internal/audit"
	"levelsmith/internal/config"
	"levelsmith/internal/multiplier"
	"levelsmith/internal/storage"
	"levelsmith/internal/voice"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

func newTestEngine(t *testing.T) (*Engine, *voice.Tracker) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zap.NewNop()
	cfg := config.LevelingConfig{
		Enabled:         true,
		XPMin:           10,
		XPMax:           10,
		CooldownSeconds: 60,
		CurveFormula:    "default",
		CurveMaxLevel:   10,
		BoostMultiplier: 1.5,
		AnnounceLevelUp: false,
		VoiceBilling:    "final",
	}

	tracker := voice.NewTracker()
	engine := NewEngine(cfg, logger, store, multiplier.NewCache(store, logger), tracker, audit.NewLogger(store, logger))
	return engine, tracker
}

func message(guildID, userID string, roles []string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			GuildID:   guildID,
			ChannelID: "c1",
			Author:    &discordgo.User{ID: userID},
			Member:    &discordgo.Member{Roles: roles},
		},
	}
}

func TestProcessMessageCooldown(t *testing.T) {
	engine, _ := newTestEngine(t)
	start := time.Unix(0, 0)
	engine.WithClock(fakeClock{now: start})
	ctx := context.Background()

	engine.ProcessMessage(ctx, message("g1", "u1", nil))

	engine.WithClock(fakeClock{now: start.Add(10 * time.Second)})
	engine.ProcessMessage(ctx, message("g1", "u1", nil))

	record := engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 10 {
		t.Fatalf("expected 10 xp after throttled message, got %d", record.XP)
	}

	engine.WithClock(fakeClock{now: start.Add(61 * time.Second)})
	engine.ProcessMessage(ctx, message("g1", "u1", nil))

	record = engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 20 {
		t.Fatalf("expected 20 xp after cooldown expired, got %d", record.XP)
	}
}

func TestProcessMessageIgnoresBots(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	msg := message("g1", "bot1", nil)
	msg.Author.Bot = true
	engine.ProcessMessage(ctx, msg)

	if record := engine.GetUserLevel(ctx, "g1", "bot1"); record.Found {
		t.Fatalf("bot should not earn xp")
	}
}

func TestProcessMessageRoleMultiplier(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.WithClock(fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	if !engine.SetRoleMultiplier(ctx, "g1", "r1", 2.0) {
		t.Fatalf("set multiplier failed")
	}
	engine.ProcessMessage(ctx, message("g1", "u1", []string{"r1"}))

	record := engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 20 {
		t.Fatalf("expected 20 xp with 2.0 multiplier, got %d", record.XP)
	}
}

func TestProcessMessageBoostMultiplier(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.WithClock(fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()
	premiumSince := time.Unix(0, 0)

	msg := message("g1", "u1", nil)
	msg.Member.PremiumSince = &premiumSince
	engine.ProcessMessage(ctx, msg)

	record := engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 15 {
		t.Fatalf("expected 15 xp with 1.5 boost, got %d", record.XP)
	}
}

func TestProcessMessageBoostStacksWithRoleMultiplier(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.WithClock(fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()
	premiumSince := time.Unix(0, 0)

	if !engine.SetRoleMultiplier(ctx, "g1", "r1", 2.0) {
		t.Fatalf("set multiplier failed")
	}
	msg := message("g1", "u1", []string{"r1"})
	msg.Member.PremiumSince = &premiumSince
	engine.ProcessMessage(ctx, msg)

	record := engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 30 {
		t.Fatalf("expected 30 xp with 2.0 role multiplier and 1.5 boost, got %d", record.XP)
	}
}

func TestProcessMessageLevelUp(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.WithClock(fakeClock{now: time.Unix(0, 0)})
	ctx := context.Background()

	// Default curve puts level 1 at 100 XP.
	if !engine.SetXP(ctx, "g1", "u1", 95) {
		t.Fatalf("set xp failed")
	}

	result := engine.ProcessMessage(ctx, message("g1", "u1", nil))
	if result == nil {
		t.Fatalf("expected a level-up result")
	}
	if !result.LeveledUp || result.Level != 1 || result.OldLevel != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVoiceSessionXP(t *testing.T) {
	engine, tracker := newTestEngine(t)
	start := time.Unix(0, 0)
	tracker.WithClock(fakeClock{now: start})
	ctx := context.Background()

	engine.HandleVoiceJoin(ctx, "g1", "u1")
	engine.UpdateSpeaking("g1", "u1", true)
	if !engine.IsInVoice("g1", "u1") {
		t.Fatalf("expected open session")
	}

	tracker.WithClock(fakeClock{now: start.Add(10 * time.Minute)})
	engine.HandleVoiceLeave(ctx, "g1", "u1", nil)

	record := engine.GetUserLevel(ctx, "g1", "u1")
	if record.XP != 20 {
		t.Fatalf("expected 20 xp from 10 speaking minutes, got %d", record.XP)
	}
}

func TestVoiceLeaveWhileDisabledClosesSession(t *testing.T) {
	engine, tracker := newTestEngine(t)
	start := time.Unix(0, 0)
	tracker.WithClock(fakeClock{now: start})
	ctx := context.Background()

	engine.HandleVoiceJoin(ctx, "g1", "u1")

	settings := engine.Settings(ctx, "g1")
	settings.Enabled = false
	if err := engine.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	tracker.WithClock(fakeClock{now: start.Add(10 * time.Minute)})
	engine.HandleVoiceLeave(ctx, "g1", "u1", nil)

	if engine.IsInVoice("g1", "u1") {
		t.Fatalf("session should be closed even while disabled")
	}
	if record := engine.GetUserLevel(ctx, "g1", "u1"); record.Found {
		t.Fatalf("disabled guild should not bank voice xp")
	}
}

func TestRank(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.SetXP(ctx, "g1", "u1", 300)
	engine.SetXP(ctx, "g1", "u2", 100)
	engine.SetXP(ctx, "g1", "u3", 200)

	if rank := engine.Rank(ctx, "g1", "u1"); rank != 1 {
		t.Fatalf("expected rank 1, got %d", rank)
	}
	if rank := engine.Rank(ctx, "g1", "u2"); rank != 3 {
		t.Fatalf("expected rank 3, got %d", rank)
	}
	if rank := engine.Rank(ctx, "g1", "nobody"); rank != 0 {
		t.Fatalf("expected rank 0 for unknown user, got %d", rank)
	}
}

func TestRemoveXPRecomputesLevel(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	engine.SetXP(ctx, "g1", "u1", 350)
	record := engine.RemoveXP(ctx, "g1", "u1", 300)
	if record.XP != 50 || record.Level != 0 {
		t.Fatalf("expected 50 xp level 0, got %+v", record)
	}
}

func TestSetLevelCurveValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.SetLevelCurve(ctx, "g1", []int64{5, 100}); err == nil {
		t.Fatalf("curve not starting at 0 should be rejected")
	}
	if err := engine.SetLevelCurve(ctx, "g1", []int64{0, 100, 100}); err == nil {
		t.Fatalf("non-increasing curve should be rejected")
	}
	if err := engine.SetLevelCurve(ctx, "g1", []int64{0}); err == nil {
		t.Fatalf("curve without levels should be rejected")
	}
	if err := engine.SetLevelCurve(ctx, "g1", []int64{0, 50, 120}); err != nil {
		t.Fatalf("valid curve rejected: %v", err)
	}

	// The custom table now drives level computation.
	engine.SetXP(ctx, "g1", "u1", 60)
	if record := engine.GetUserLevel(ctx, "g1", "u1"); record.Level != 1 {
		t.Fatalf("expected level 1 on custom curve, got %d", record.Level)
	}
}

func TestDisabledGuildEarnsNothing(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	settings := engine.Settings(ctx, "g1")
	settings.Enabled = false
	if err := engine.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	engine.ProcessMessage(ctx, message("g1", "u1", nil))
	if record := engine.GetUserLevel(ctx, "g1", "u1"); record.Found {
		t.Fatalf("disabled guild should not grant xp")
	}
}
