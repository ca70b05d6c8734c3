package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// LevelingSettings is the per-guild leveling configuration row. A guild with
// no row gets the defaults passed into GetLevelingSettings.
type LevelingSettings struct {
	GuildID         string
	Enabled         bool
	XPMin           int
	XPMax           int
	CooldownSeconds int
	CurveFormula    string
	CurveMaxLevel   int
	LevelCurve      []int64
	LevelRoles      map[int]string
	AnnounceLevelUp bool
	LevelUpChannel  string
	VoiceBilling    string
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetLevelingSettings(ctx context.Context, guildID string, defaults LevelingSettings) (LevelingSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT enabled, xp_min, xp_max, cooldown_seconds, curve_formula, curve_max_level,
		COALESCE(level_curve, ''), COALESCE(level_roles, ''), announce_levelup,
		levelup_channel, voice_billing
		FROM leveling_settings WHERE guild_id = ?`, guildID)

	result := defaults
	result.GuildID = guildID

	var enabled, announce int
	var curveJSON, rolesJSON string
	err := row.Scan(
		&enabled,
		&result.XPMin,
		&result.XPMax,
		&result.CooldownSeconds,
		&result.CurveFormula,
		&result.CurveMaxLevel,
		&curveJSON,
		&rolesJSON,
		&announce,
		&result.LevelUpChannel,
		&result.VoiceBilling,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return LevelingSettings{}, err
	}
	result.Enabled = enabled == 1
	result.AnnounceLevelUp = announce == 1
	result.LevelCurve = nil
	if curveJSON != "" {
		var table []int64
		if err := json.Unmarshal([]byte(curveJSON), &table); err == nil {
			result.LevelCurve = table
		}
	}
	result.LevelRoles = nil
	if rolesJSON != "" {
		var roles map[int]string
		if err := json.Unmarshal([]byte(rolesJSON), &roles); err == nil {
			result.LevelRoles = roles
		}
	}
	return result, nil
}

func (s *Store) UpsertLevelingSettings(ctx context.Context, settings LevelingSettings) error {
	curveJSON, err := encodeCurve(settings.LevelCurve)
	if err != nil {
		return err
	}
	rolesJSON, err := encodeRoles(settings.LevelRoles)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leveling_settings (
			guild_id, enabled, xp_min, xp_max, cooldown_seconds, curve_formula,
			curve_max_level, level_curve, level_roles, announce_levelup,
			levelup_channel, voice_billing
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			enabled = excluded.enabled,
			xp_min = excluded.xp_min,
			xp_max = excluded.xp_max,
			cooldown_seconds = excluded.cooldown_seconds,
			curve_formula = excluded.curve_formula,
			curve_max_level = excluded.curve_max_level,
			level_curve = excluded.level_curve,
			level_roles = excluded.level_roles,
			announce_levelup = excluded.announce_levelup,
			levelup_channel = excluded.levelup_channel,
			voice_billing = excluded.voice_billing
	`,
		settings.GuildID,
		boolToInt(settings.Enabled),
		settings.XPMin,
		settings.XPMax,
		settings.CooldownSeconds,
		settings.CurveFormula,
		settings.CurveMaxLevel,
		curveJSON,
		rolesJSON,
		boolToInt(settings.AnnounceLevelUp),
		settings.LevelUpChannel,
		settings.VoiceBilling,
	)
	return err
}

func (s *Store) SetLevelCurve(ctx context.Context, guildID string, table []int64) error {
	curveJSON, err := encodeCurve(table)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leveling_settings (guild_id, level_curve)
		VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET level_curve = excluded.level_curve
	`, guildID, curveJSON)
	return err
}

func (s *Store) GetRoleMultipliers(ctx context.Context, guildID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id, multiplier FROM role_multipliers WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	multipliers := make(map[string]float64)
	for rows.Next() {
		var roleID string
		var multiplier float64
		if err := rows.Scan(&roleID, &multiplier); err != nil {
			return nil, err
		}
		multipliers[roleID] = multiplier
	}
	return multipliers, rows.Err()
}

func (s *Store) SetRoleMultiplier(ctx context.Context, guildID, roleID string, multiplier float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_multipliers (guild_id, role_id, multiplier)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id, role_id) DO UPDATE SET multiplier = excluded.multiplier
	`, guildID, roleID, multiplier)
	return err
}

func (s *Store) RemoveRoleMultiplier(ctx context.Context, guildID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_multipliers WHERE guild_id = ? AND role_id = ?`, guildID, roleID)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM activity_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func encodeCurve(table []int64) (any, error) {
	if table == nil {
		return nil, nil
	}
	data, err := json.Marshal(table)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func encodeRoles(roles map[int]string) (any, error) {
	if roles == nil {
		return nil, nil
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
