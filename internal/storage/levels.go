package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LevelRecord is one (guild, user) XP row. Found reports whether the row
// existed; an unseen pair scans as a zero-valued record.
type LevelRecord struct {
	GuildID  string
	UserID   string
	XP       int64
	Level    int
	Messages int64
	LastXPAt time.Time
	Found    bool
}

func (s *Store) GetLevelRecord(ctx context.Context, guildID, userID string) (LevelRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT xp, level, messages, last_xp_at
		FROM levels
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	record := LevelRecord{GuildID: guildID, UserID: userID}
	var lastXP int64
	err := row.Scan(&record.XP, &record.Level, &record.Messages, &lastXP)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, nil
		}
		return LevelRecord{}, err
	}
	record.LastXPAt = time.Unix(lastXP, 0)
	record.Found = true
	return record, nil
}

// AddXP increments the stored XP total and message counter in one
// transaction, recomputing the level from the new total via levelFor. It
// returns the updated record and the level held before the write.
func (s *Store) AddXP(ctx context.Context, guildID, userID string, delta int64, levelFor func(xp int64) int) (LevelRecord, int, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LevelRecord{}, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	oldLevel := 0
	row := tx.QueryRowContext(ctx, `
		SELECT level FROM levels WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	scanErr := row.Scan(&oldLevel)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return LevelRecord{}, 0, err
	}

	record := LevelRecord{GuildID: guildID, UserID: userID, LastXPAt: now, Found: true}
	row = tx.QueryRowContext(ctx, `
		INSERT INTO levels (guild_id, user_id, xp, level, messages, last_xp_at)
		VALUES (?, ?, ?, 0, 1, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			xp = xp + excluded.xp,
			messages = messages + 1,
			last_xp_at = excluded.last_xp_at
		RETURNING xp, messages
	`, guildID, userID, delta, now.Unix())
	if err = row.Scan(&record.XP, &record.Messages); err != nil {
		return LevelRecord{}, 0, err
	}

	record.Level = levelFor(record.XP)
	_, err = tx.ExecContext(ctx, `
		UPDATE levels SET level = ? WHERE guild_id = ? AND user_id = ?
	`, record.Level, guildID, userID)
	if err != nil {
		return LevelRecord{}, 0, err
	}
	if err = tx.Commit(); err != nil {
		return LevelRecord{}, 0, err
	}
	return record, oldLevel, nil
}

// SetXP overwrites the XP total, preserving the message counter.
func (s *Store) SetXP(ctx context.Context, guildID, userID string, xp int64, level int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO levels (guild_id, user_id, xp, level, messages, last_xp_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			xp = excluded.xp,
			level = excluded.level,
			last_xp_at = excluded.last_xp_at
	`, guildID, userID, xp, level, time.Now().Unix())
	return err
}

// RemoveXP subtracts delta from the stored total, flooring at zero, and
// recomputes the level inside the same transaction.
func (s *Store) RemoveXP(ctx context.Context, guildID, userID string, delta int64, levelFor func(xp int64) int) (LevelRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LevelRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := LevelRecord{GuildID: guildID, UserID: userID}
	row := tx.QueryRowContext(ctx, `
		SELECT xp, messages FROM levels WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	scanErr := row.Scan(&record.XP, &record.Messages)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			_ = tx.Rollback()
			return record, nil
		}
		err = scanErr
		return LevelRecord{}, err
	}

	record.XP -= delta
	if record.XP < 0 {
		record.XP = 0
	}
	record.Level = levelFor(record.XP)
	record.Found = true

	_, err = tx.ExecContext(ctx, `
		UPDATE levels SET xp = ?, level = ? WHERE guild_id = ? AND user_id = ?
	`, record.XP, record.Level, guildID, userID)
	if err != nil {
		return LevelRecord{}, err
	}
	if err = tx.Commit(); err != nil {
		return LevelRecord{}, err
	}
	return record, nil
}

func (s *Store) Leaderboard(ctx context.Context, guildID string, limit, offset int) ([]LevelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, xp, level, messages
		FROM levels
		WHERE guild_id = ?
		ORDER BY xp DESC
		LIMIT ? OFFSET ?
	`, guildID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []LevelRecord
	for rows.Next() {
		record := LevelRecord{GuildID: guildID, Found: true}
		if err := rows.Scan(&record.UserID, &record.XP, &record.Level, &record.Messages); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) ResetUser(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM levels WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}

func (s *Store) ResetGuild(ctx context.Context, guildID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM levels WHERE guild_id = ?`, guildID)
	return err
}

type GuildStats struct {
	TotalUsers    int64
	TotalXP       int64
	TotalMessages int64
	AvgLevel      float64
	MaxLevel      int
}

func (s *Store) GuildStats(ctx context.Context, guildID string) (GuildStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		COALESCE(SUM(xp), 0),
		COALESCE(SUM(messages), 0),
		COALESCE(AVG(level), 0),
		COALESCE(MAX(level), 0)
		FROM levels
		WHERE guild_id = ?
	`, guildID)

	var stats GuildStats
	if err := row.Scan(&stats.TotalUsers, &stats.TotalXP, &stats.TotalMessages, &stats.AvgLevel, &stats.MaxLevel); err != nil {
		return GuildStats{}, err
	}
	return stats, nil
}
