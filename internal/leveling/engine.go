package leveling

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"levelsmith/internal/audit"
	"levelsmith/internal/config"
	"levelsmith/internal/curve"
	"levelsmith/internal/multiplier"
	"levelsmith/internal/storage"
	"levelsmith/internal/voice"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// rankScanLimit bounds how many records a rank lookup walks.
const rankScanLimit = 1000

// Notifier delivers level-up announcements and role grants back through the
// chat platform. Implemented by the bot layer.
type Notifier interface {
	AnnounceLevelUp(ctx context.Context, guildID, channelID, fallbackChannelID, userID string, level int)
	DirectLevelUp(ctx context.Context, userID string, level int)
	GrantRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

// Result describes one XP mutation.
type Result struct {
	XP        int64
	Level     int
	OldLevel  int
	LeveledUp bool
}

// Engine orchestrates XP accrual from messages and voice sessions, rank and
// leaderboard queries, and administrative mutations. Every public method
// absorbs store and platform failures: callers get a zero value, never an
// error, so event handlers cannot crash on a leveling fault.
type Engine struct {
	cfg         config.LevelingConfig
	logger      *zap.Logger
	store       *storage.Store
	multipliers *multiplier.Cache
	voice       *voice.Tracker
	audit       *audit.Logger
	notifier    Notifier
	clock       Clock
	intn        func(n int) int
	cooldowns   *cooldownTracker

	curveMu sync.Mutex
	curves  map[string][]int64
}

func NewEngine(cfg config.LevelingConfig, logger *zap.Logger, store *storage.Store, multipliers *multiplier.Cache, voiceTracker *voice.Tracker, auditLogger *audit.Logger) *Engine {
	clock := Clock(realClock{})
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		multipliers: multipliers,
		voice:       voiceTracker,
		audit:       auditLogger,
		clock:       clock,
		intn:        rand.Intn,
		cooldowns:   newCooldownTracker(clock),
		curves:      make(map[string][]int64),
	}
}

func (e *Engine) SetNotifier(notifier Notifier) {
	e.notifier = notifier
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
	e.cooldowns.clock = clock
}

func (e *Engine) WithRand(intn func(n int) int) {
	e.intn = intn
}

// Settings returns the guild's leveling settings, falling back to the
// process defaults when the guild has no row or the store fails.
func (e *Engine) Settings(ctx context.Context, guildID string) storage.LevelingSettings {
	defaults := storage.LevelingSettings{
		GuildID:         guildID,
		Enabled:         e.cfg.Enabled,
		XPMin:           e.cfg.XPMin,
		XPMax:           e.cfg.XPMax,
		CooldownSeconds: e.cfg.CooldownSeconds,
		CurveFormula:    e.cfg.CurveFormula,
		CurveMaxLevel:   e.cfg.CurveMaxLevel,
		AnnounceLevelUp: e.cfg.AnnounceLevelUp,
		VoiceBilling:    e.cfg.VoiceBilling,
	}

	settings, err := e.store.GetLevelingSettings(ctx, guildID, defaults)
	if err != nil {
		e.logger.Warn("leveling settings fallback", zap.String("guild_id", guildID), zap.Error(err))
		return defaults
	}
	return settings
}

func (e *Engine) UpdateSettings(ctx context.Context, settings storage.LevelingSettings) error {
	if err := e.store.UpsertLevelingSettings(ctx, settings); err != nil {
		return err
	}
	e.invalidateCurve(settings.GuildID)
	return nil
}

// ProcessMessage runs the message-XP pipeline: eligibility gates, cooldown,
// random base XP, role and boost multipliers, persist, level-up delivery.
// Returns nil when no level-up occurred.
func (e *Engine) ProcessMessage(ctx context.Context, msg *discordgo.MessageCreate) *Result {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return nil
	}

	settings := e.Settings(ctx, msg.GuildID)
	if !settings.Enabled {
		return nil
	}

	guildID := msg.GuildID
	userID := msg.Author.ID
	window := time.Duration(settings.CooldownSeconds) * time.Second
	if e.cooldowns.OnCooldown(guildID, userID, window) {
		return nil
	}

	base := settings.XPMin
	if span := settings.XPMax - settings.XPMin; span > 0 {
		base += e.intn(span + 1)
	}

	var roles []string
	boosting := false
	if msg.Member != nil {
		roles = msg.Member.Roles
		boosting = msg.Member.PremiumSince != nil
	}
	mult := e.multipliers.MultiplierFor(ctx, guildID, roles)
	if boosting {
		mult *= e.cfg.BoostMultiplier
	}
	gained := int64(float64(base) * mult)

	// Stamped before the write; cooldown is best effort.
	e.cooldowns.Stamp(guildID, userID)

	result := e.AddXP(ctx, guildID, userID, gained)
	if result == nil || !result.LeveledUp {
		return nil
	}

	e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventLevelUp, fmt.Sprintf("level=%d xp=%d source=message", result.Level, result.XP))
	if settings.AnnounceLevelUp && e.notifier != nil {
		e.notifier.AnnounceLevelUp(ctx, guildID, settings.LevelUpChannel, msg.ChannelID, userID, result.Level)
	}
	e.grantLevelRoles(ctx, settings, guildID, userID, roles, result.Level)
	return result
}

// AddXP is the single path through which XP totals grow. The level is
// recomputed from the new total inside the store transaction.
func (e *Engine) AddXP(ctx context.Context, guildID, userID string, xp int64) *Result {
	table := e.curveFor(ctx, guildID)
	record, oldLevel, err := e.store.AddXP(ctx, guildID, userID, xp, func(total int64) int {
		return curve.LevelForXP(total, table)
	})
	if err != nil {
		e.logger.Error("xp write failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return &Result{
		XP:        record.XP,
		Level:     record.Level,
		OldLevel:  oldLevel,
		LeveledUp: record.Level > oldLevel,
	}
}

func (e *Engine) HandleVoiceJoin(ctx context.Context, guildID, userID string) {
	if !e.Settings(ctx, guildID).Enabled {
		return
	}
	e.voice.StartSession(guildID, userID)
}

// HandleVoiceLeave bills the closed session and pays the XP out through
// AddXP. Level-ups are delivered by DM since there is no channel context.
func (e *Engine) HandleVoiceLeave(ctx context.Context, guildID, userID string, roles []string) {
	settings := e.Settings(ctx, guildID)

	// Close the session either way; a guild disabled mid-session must not
	// leave a stale entry behind.
	minutes, xp := e.voice.EndSession(guildID, userID, voice.ParseBillingMode(settings.VoiceBilling))
	if !settings.Enabled || xp <= 0 {
		return
	}

	result := e.AddXP(ctx, guildID, userID, xp)
	if result == nil || !result.LeveledUp {
		return
	}

	e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventLevelUp, fmt.Sprintf("level=%d xp=%d minutes=%d source=voice", result.Level, result.XP, minutes))
	if settings.AnnounceLevelUp && e.notifier != nil {
		e.notifier.DirectLevelUp(ctx, userID, result.Level)
	}
	e.grantLevelRoles(ctx, settings, guildID, userID, roles, result.Level)
}

func (e *Engine) UpdateSpeaking(guildID, userID string, speaking bool) {
	e.voice.UpdateSpeaking(guildID, userID, speaking)
}

func (e *Engine) IsInVoice(guildID, userID string) bool {
	return e.voice.IsInVoice(guildID, userID)
}

func (e *Engine) GetUserLevel(ctx context.Context, guildID, userID string) storage.LevelRecord {
	record, err := e.store.GetLevelRecord(ctx, guildID, userID)
	if err != nil {
		e.logger.Error("level record read failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return storage.LevelRecord{GuildID: guildID, UserID: userID}
	}
	return record
}

// Rank returns the 1-based leaderboard position, or 0 when the user has no
// record among the top entries.
func (e *Engine) Rank(ctx context.Context, guildID, userID string) int {
	records := e.Leaderboard(ctx, guildID, rankScanLimit, 0)
	for i, record := range records {
		if record.UserID == userID {
			return i + 1
		}
	}
	return 0
}

func (e *Engine) Leaderboard(ctx context.Context, guildID string, limit, offset int) []storage.LevelRecord {
	records, err := e.store.Leaderboard(ctx, guildID, limit, offset)
	if err != nil {
		e.logger.Error("leaderboard read failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	return records
}

// Progress reports the XP still needed, earned, and the band size for the
// record's current level.
func (e *Engine) Progress(ctx context.Context, guildID string, record storage.LevelRecord) (needed, earned, span int64) {
	return curve.Progress(record.XP, record.Level, e.curveFor(ctx, guildID))
}

func (e *Engine) Stats(ctx context.Context, guildID string) storage.GuildStats {
	stats, err := e.store.GuildStats(ctx, guildID)
	if err != nil {
		e.logger.Error("guild stats failed", zap.String("guild_id", guildID), zap.Error(err))
		return storage.GuildStats{}
	}
	return stats
}

func (e *Engine) SetXP(ctx context.Context, guildID, userID string, xp int64) bool {
	if xp < 0 {
		xp = 0
	}
	level := curve.LevelForXP(xp, e.curveFor(ctx, guildID))
	if err := e.store.SetXP(ctx, guildID, userID, xp, level); err != nil {
		e.logger.Error("xp set failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return false
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventXPSet, fmt.Sprintf("xp=%d level=%d", xp, level))
	return true
}

func (e *Engine) RemoveXP(ctx context.Context, guildID, userID string, xp int64) storage.LevelRecord {
	table := e.curveFor(ctx, guildID)
	record, err := e.store.RemoveXP(ctx, guildID, userID, xp, func(total int64) int {
		return curve.LevelForXP(total, table)
	})
	if err != nil {
		e.logger.Error("xp remove failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return storage.LevelRecord{GuildID: guildID, UserID: userID}
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventXPRemoved, fmt.Sprintf("removed=%d xp=%d", xp, record.XP))
	return record
}

func (e *Engine) ResetUser(ctx context.Context, guildID, userID string) bool {
	if err := e.store.ResetUser(ctx, guildID, userID); err != nil {
		e.logger.Error("user reset failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return false
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventUserReset, "level record deleted")
	return true
}

func (e *Engine) ResetGuild(ctx context.Context, guildID string) bool {
	if err := e.store.ResetGuild(ctx, guildID); err != nil {
		e.logger.Error("guild reset failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	e.audit.Log(ctx, audit.LevelWarn, guildID, "", audit.EventGuildReset, "all level records deleted")
	return true
}

func (e *Engine) SetRoleMultiplier(ctx context.Context, guildID, roleID string, value float64) bool {
	if value <= 0 {
		return false
	}
	if err := e.multipliers.Set(ctx, guildID, roleID, value); err != nil {
		e.logger.Error("multiplier set failed", zap.String("guild_id", guildID), zap.String("role_id", roleID), zap.Error(err))
		return false
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, "", audit.EventMultiplierSet, fmt.Sprintf("role=%s multiplier=%.2f", roleID, value))
	return true
}

func (e *Engine) RemoveRoleMultiplier(ctx context.Context, guildID, roleID string) bool {
	if err := e.multipliers.Remove(ctx, guildID, roleID); err != nil {
		e.logger.Error("multiplier remove failed", zap.String("guild_id", guildID), zap.String("role_id", roleID), zap.Error(err))
		return false
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, "", audit.EventMultiplierRemoved, "role="+roleID)
	return true
}

func (e *Engine) ListRoleMultipliers(ctx context.Context, guildID string) map[string]float64 {
	return e.multipliers.List(ctx, guildID)
}

// SetLevelCurve stores an explicit threshold table for a guild. The table
// must start at zero and be strictly increasing.
func (e *Engine) SetLevelCurve(ctx context.Context, guildID string, table []int64) error {
	if len(table) < 2 || table[0] != 0 {
		return fmt.Errorf("curve must start at 0 and define at least one level")
	}
	for i := 1; i < len(table); i++ {
		if table[i] <= table[i-1] {
			return fmt.Errorf("curve not strictly increasing at level %d", i)
		}
	}
	if err := e.store.SetLevelCurve(ctx, guildID, table); err != nil {
		return err
	}
	e.invalidateCurve(guildID)
	e.audit.Log(ctx, audit.LevelInfo, guildID, "", audit.EventCurveSet, fmt.Sprintf("levels=%d", len(table)-1))
	return nil
}

func (e *Engine) curveFor(ctx context.Context, guildID string) []int64 {
	e.curveMu.Lock()
	if table, ok := e.curves[guildID]; ok {
		e.curveMu.Unlock()
		return table
	}
	e.curveMu.Unlock()

	settings := e.Settings(ctx, guildID)
	table := settings.LevelCurve
	if len(table) == 0 {
		table = curve.Generate(settings.CurveMaxLevel, curve.ParseFormula(settings.CurveFormula))
	}

	e.curveMu.Lock()
	defer e.curveMu.Unlock()
	e.curves[guildID] = table
	return table
}

func (e *Engine) invalidateCurve(guildID string) {
	e.curveMu.Lock()
	defer e.curveMu.Unlock()
	delete(e.curves, guildID)
}

func (e *Engine) grantLevelRoles(ctx context.Context, settings storage.LevelingSettings, guildID, userID string, heldRoles []string, level int) {
	if len(settings.LevelRoles) == 0 || e.notifier == nil {
		return
	}

	held := make(map[string]struct{}, len(heldRoles))
	for _, roleID := range heldRoles {
		held[roleID] = struct{}{}
	}

	for requiredLevel, roleID := range settings.LevelRoles {
		if level < requiredLevel {
			continue
		}
		if _, ok := held[roleID]; ok {
			continue
		}
		reason := fmt.Sprintf("Reached level %d", level)
		if err := e.notifier.GrantRole(ctx, guildID, userID, roleID, reason); err != nil {
			e.audit.Log(ctx, audit.LevelWarn, guildID, userID, audit.EventRoleGrantFailed, "role="+roleID)
			continue
		}
		e.audit.Log(ctx, audit.LevelInfo, guildID, userID, audit.EventRoleGranted, "role="+roleID)
	}
}
