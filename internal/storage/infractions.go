package storage

import (
	"context"
	"time"
)

// Infraction is one warning on a member's record. Rows are append-only;
// the only mutation is deletion by id.
type Infraction struct {
	ID        int64
	GuildID   string
	UserID    string
	Size      float64
	Reason    string
	LogLink   string
	Moderator string
	CreatedAt time.Time
}

func (s *Store) ListInfractions(ctx context.Context, guildID, userID string) ([]Infraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, size, reason, log_link, moderator_id, created_at
		FROM infractions
		WHERE guild_id = ? AND user_id = ?
		ORDER BY id
	`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	infractions := []Infraction{}
	for rows.Next() {
		var inf Infraction
		var created int64
		if err := rows.Scan(&inf.ID, &inf.GuildID, &inf.UserID, &inf.Size, &inf.Reason, &inf.LogLink, &inf.Moderator, &created); err != nil {
			return nil, err
		}
		inf.CreatedAt = time.Unix(created, 0)
		infractions = append(infractions, inf)
	}
	return infractions, rows.Err()
}

func (s *Store) AddInfraction(ctx context.Context, inf Infraction) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO infractions (guild_id, user_id, size, reason, log_link, moderator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inf.GuildID, inf.UserID, inf.Size, inf.Reason, inf.LogLink, inf.Moderator, inf.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Store) DeleteInfraction(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM infractions WHERE id = ?`, id)
	return err
}
