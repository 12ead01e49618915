package storage

import (
	"context"
	"time"
)

// ActRecord is the permanent history entry kept for every executed
// punishment, including ones that later expire.
type ActRecord struct {
	ID         int64
	GuildID    string
	UserID     string
	Type       string
	Reason     string
	LogLink    string
	Length     time.Duration
	HappenedAt time.Time
}

func (s *Store) AddActRecord(ctx context.Context, rec ActRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO act_records (guild_id, user_id, type, reason, log_link, length_seconds, happened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.GuildID, rec.UserID, rec.Type, rec.Reason, rec.LogLink, int64(rec.Length/time.Second), rec.HappenedAt.Unix())
	return err
}

func (s *Store) ListActRecords(ctx context.Context, guildID, userID string) ([]ActRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, type, reason, log_link, length_seconds, happened_at
		FROM act_records
		WHERE guild_id = ? AND user_id = ?
		ORDER BY id
	`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ActRecord
	for rows.Next() {
		var rec ActRecord
		var seconds, happened int64
		if err := rows.Scan(&rec.ID, &rec.GuildID, &rec.UserID, &rec.Type, &rec.Reason, &rec.LogLink, &seconds, &happened); err != nil {
			return nil, err
		}
		rec.Length = time.Duration(seconds) * time.Second
		rec.HappenedAt = time.Unix(happened, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}
