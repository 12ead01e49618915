package storage

import (
	"context"
	"database/sql"
	"embed"
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

// ModerationSettings is the per-guild policy document. A guild without a
// row gets the zero value: no duration cap, no exempt roles, no mute role.
type ModerationSettings struct {
	GuildID       string
	MaxTempAction time.Duration
	MutedRole     string
	AbleToWarn    []string
	CantBeWarned  []string
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

func (s *Store) GetModerationSettings(ctx context.Context, guildID string) (ModerationSettings, error) {
	result := ModerationSettings{GuildID: guildID}

	row := s.db.QueryRowContext(ctx, `
		SELECT max_temp_action_seconds, muted_role
		FROM moderation_settings WHERE guild_id = ?`, guildID)

	var maxSeconds int64
	err := row.Scan(&maxSeconds, &result.MutedRole)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ModerationSettings{}, err
	}
	result.MaxTempAction = time.Duration(maxSeconds) * time.Second

	result.AbleToWarn, err = s.listRoles(ctx, "warn_authorized_roles", guildID)
	if err != nil {
		return ModerationSettings{}, err
	}
	result.CantBeWarned, err = s.listRoles(ctx, "warn_exempt_roles", guildID)
	if err != nil {
		return ModerationSettings{}, err
	}
	return result, nil
}

func (s *Store) UpsertModerationSettings(ctx context.Context, settings ModerationSettings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO moderation_settings (guild_id, max_temp_action_seconds, muted_role)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			max_temp_action_seconds = excluded.max_temp_action_seconds,
			muted_role = excluded.muted_role
	`, settings.GuildID, int64(settings.MaxTempAction/time.Second), settings.MutedRole)
	if err != nil {
		return err
	}

	if err = replaceRoles(ctx, tx, "warn_authorized_roles", settings.GuildID, settings.AbleToWarn); err != nil {
		return err
	}
	if err = replaceRoles(ctx, tx, "warn_exempt_roles", settings.GuildID, settings.CantBeWarned); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) listRoles(ctx context.Context, table, guildID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id FROM `+table+` WHERE guild_id = ? ORDER BY role_id`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func replaceRoles(ctx context.Context, tx *sql.Tx, table, guildID string, roles []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE guild_id = ?`, guildID); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO `+table+` (guild_id, role_id) VALUES (?, ?)`, guildID, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
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

// PurgeGuild drops every row scoped to the guild. Called when the bot is
// removed from a guild.
func (s *Store) PurgeGuild(ctx context.Context, guildID string) error {
	tables := []string{
		"moderation_settings",
		"warn_authorized_roles",
		"warn_exempt_roles",
		"infractions",
		"temp_actions",
		"act_records",
		"audit_logs",
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range tables {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE guild_id = ?`, guildID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
