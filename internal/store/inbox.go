package store

import (
	"context"
	"time"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

// ListConversations returns one preview per private conversation the identity
// takes part in, most recent first.
func (s *SQLite) ListConversations(ctx context.Context, identity string) ([]models.ConversationPreview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.pair_key, m.id, m.sender, m.recipient, m.text, m.created_at,
		  (SELECT COUNT(*) FROM private_messages u
		    WHERE u.pair_key = m.pair_key
		      AND u.recipient = ?
		      AND u.sender <> u.recipient
		      AND u.id > COALESCE((SELECT r.last_read_id FROM read_markers r
		                           WHERE r.identity = ? AND r.pair_key = m.pair_key), 0)
		  ) AS unread
		FROM private_messages m
		WHERE m.id IN (
		  SELECT MAX(id) FROM private_messages
		  WHERE sender = ? OR recipient = ?
		  GROUP BY pair_key
		)
		ORDER BY m.id DESC
	`, identity, identity, identity, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.ConversationPreview{}
	for rows.Next() {
		var (
			p                 models.ConversationPreview
			sender, recipient string
			createdAt         int64
		)
		if err := rows.Scan(&p.PairKey, &p.LastID, &sender, &recipient, &p.LastBody, &createdAt, &p.Unread); err != nil {
			return nil, err
		}
		p.LastFrom = sender
		p.LastAt = time.UnixMilli(createdAt)
		p.Peer = recipient
		if recipient == identity {
			p.Peer = sender
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkRead moves the identity's read marker for the conversation with peer to
// its newest message.
func (s *SQLite) MarkRead(ctx context.Context, identity, peer string) error {
	key := models.PairKey(identity, peer)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_markers (identity, pair_key, last_read_id)
		VALUES (?, ?, (SELECT COALESCE(MAX(id), 0) FROM private_messages WHERE pair_key = ?))
		ON CONFLICT (identity, pair_key) DO UPDATE SET last_read_id = excluded.last_read_id
	`, identity, key, key)
	return err
}
