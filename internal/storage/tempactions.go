package storage

import (
	"context"
	"time"
)

// TempAction is an active timed punishment. The primary key
// (guild_id, kind, user_id) enforces at most one per kind and member.
type TempAction struct {
	GuildID   string
	Kind      string
	UserID    string
	Moderator string
	Reason    string
	Length    time.Duration
	StartedAt time.Time
}

func (s *Store) AddTempAction(ctx context.Context, act TempAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temp_actions (guild_id, kind, user_id, moderator_id, reason, length_seconds, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, kind, user_id) DO UPDATE SET
			moderator_id = excluded.moderator_id,
			reason = excluded.reason,
			length_seconds = excluded.length_seconds,
			started_at = excluded.started_at
	`, act.GuildID, act.Kind, act.UserID, act.Moderator, act.Reason, int64(act.Length/time.Second), act.StartedAt.Unix())
	return err
}

func (s *Store) RemoveTempAction(ctx context.Context, guildID, kind, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM temp_actions WHERE guild_id = ? AND kind = ? AND user_id = ?
	`, guildID, kind, userID)
	return err
}

func (s *Store) ListTempActions(ctx context.Context) ([]TempAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, kind, user_id, moderator_id, reason, length_seconds, started_at
		FROM temp_actions
		ORDER BY guild_id, kind, user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []TempAction
	for rows.Next() {
		var act TempAction
		var seconds, started int64
		if err := rows.Scan(&act.GuildID, &act.Kind, &act.UserID, &act.Moderator, &act.Reason, &seconds, &started); err != nil {
			return nil, err
		}
		act.Length = time.Duration(seconds) * time.Second
		act.StartedAt = time.Unix(started, 0)
		actions = append(actions, act)
	}
	return actions, rows.Err()
}
