package store

import (
	"context"
	"strings"
	"time"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// AddReaction inserts the tuple. It reports false when the tuple was already
// there; the unique index settles concurrent adds.
func (s *SQLite) AddReaction(ctx context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reactions (message_id, scope, identity, emoji, reacted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (message_id, scope, identity, emoji) DO NOTHING
	`, messageID, string(scope), identity, emoji, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveReaction deletes the tuple and reports whether a row went away.
func (s *SQLite) RemoveReaction(ctx context.Context, messageID int64, scope models.Scope, identity, emoji string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE message_id = ? AND scope = ? AND identity = ? AND emoji = ?
	`, messageID, string(scope), identity, emoji)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TallyReactions groups the reactions on one message by emoji.
func (s *SQLite) TallyReactions(ctx context.Context, messageID int64, scope models.Scope) (models.Tally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emoji, identity
		FROM reactions
		WHERE message_id = ? AND scope = ?
		ORDER BY reacted_at ASC, rowid ASC
	`, messageID, string(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tally := models.Tally{}
	for rows.Next() {
		var emoji, identity string
		if err := rows.Scan(&emoji, &identity); err != nil {
			return nil, err
		}
		tally[emoji] = append(tally[emoji], identity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tally, nil
}

// TallyMany loads tallies for several messages of the same scope at once.
// Messages without reactions are absent from the result.
func (s *SQLite) TallyMany(ctx context.Context, scope models.Scope, ids []int64) (map[int64]models.Tally, error) {
	result := make(map[int64]models.Tally)
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(scope))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, emoji, identity
		FROM reactions
		WHERE scope = ? AND message_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY reacted_at ASC, rowid ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id              int64
			emoji, identity string
		)
		if err := rows.Scan(&id, &emoji, &identity); err != nil {
			return nil, err
		}
		if result[id] == nil {
			result[id] = models.Tally{}
		}
		result[id][emoji] = append(result[id][emoji], identity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
