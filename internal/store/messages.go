package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pelusa-v/dispatchdesk/internal/models"
)

const (
	publicCols  = `id, '' AS pair_key, sender, '' AS recipient, text, attachment_url, attachment_type, attachment_name, reply_to_id, created_at`
	privateCols = `id, pair_key, sender, recipient, text, attachment_url, attachment_type, attachment_name, reply_to_id, created_at`
)

// PersistPublic appends to the public log and returns the stored row.
func (s *SQLite) PersistPublic(ctx context.Context, sender, text string, att *models.Attachment, replyTo *int64) (*models.Message, error) {
	now := time.Now()
	url, typ, name := attachmentArgs(att)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO public_messages (sender, text, attachment_url, attachment_type, attachment_name, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sender, text, url, typ, name, nullableID(replyTo), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert public message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:         id,
		Scope:      models.ScopePublic,
		Sender:     sender,
		Text:       text,
		Attachment: att,
		ReplyToID:  replyTo,
		CreatedAt:  time.UnixMilli(now.UnixMilli()),
	}, nil
}

// PersistPrivate appends to the log of one conversation.
func (s *SQLite) PersistPrivate(ctx context.Context, pairKey, sender, recipient, text string, att *models.Attachment, replyTo *int64) (*models.Message, error) {
	now := time.Now()
	url, typ, name := attachmentArgs(att)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO private_messages (pair_key, sender, recipient, text, attachment_url, attachment_type, attachment_name, reply_to_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pairKey, sender, recipient, text, url, typ, name, nullableID(replyTo), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert private message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:         id,
		Scope:      models.ScopePrivate,
		PairKey:    pairKey,
		Sender:     sender,
		Recipient:  recipient,
		Text:       text,
		Attachment: att,
		ReplyToID:  replyTo,
		CreatedAt:  time.UnixMilli(now.UnixMilli()),
	}, nil
}

// FetchPublic returns up to limit messages, newest first.
func (s *SQLite) FetchPublic(ctx context.Context, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+publicCols+`
		FROM public_messages
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows, models.ScopePublic)
}

// FetchPrivate returns up to limit messages of one conversation, newest first.
func (s *SQLite) FetchPrivate(ctx context.Context, pairKey string, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+privateCols+`
		FROM private_messages
		WHERE pair_key = ?
		ORDER BY id DESC
		LIMIT ?
	`, pairKey, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows, models.ScopePrivate)
}

// Lookup returns a single message, or nil if it does not exist.
func (s *SQLite) Lookup(ctx context.Context, scope models.Scope, id int64) (*models.Message, error) {
	var query string
	switch scope {
	case models.ScopePublic:
		query = `SELECT ` + publicCols + ` FROM public_messages WHERE id = ?`
	case models.ScopePrivate:
		query = `SELECT ` + privateCols + ` FROM private_messages WHERE id = ?`
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id), scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

// CountMessages counts public and private messages together.
func (s *SQLite) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM public_messages) + (SELECT COUNT(*) FROM private_messages)
	`).Scan(&n)
	return n, err
}

// ClearHistory drops every message, reaction and read marker.
func (s *SQLite) ClearHistory(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM reactions",
		"DELETE FROM read_markers",
		"DELETE FROM public_messages",
		"DELETE FROM private_messages",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, scope models.Scope) (*models.Message, error) {
	var (
		m              models.Message
		url, typ, name sql.NullString
		replyTo        sql.NullInt64
		createdAt      int64
	)
	if err := row.Scan(&m.ID, &m.PairKey, &m.Sender, &m.Recipient, &m.Text, &url, &typ, &name, &replyTo, &createdAt); err != nil {
		return nil, err
	}
	m.Scope = scope
	m.CreatedAt = time.UnixMilli(createdAt)
	if url.Valid && url.String != "" {
		m.Attachment = &models.Attachment{URL: url.String, Type: typ.String, Name: name.String}
	}
	if replyTo.Valid {
		id := replyTo.Int64
		m.ReplyToID = &id
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows, scope models.Scope) ([]*models.Message, error) {
	defer rows.Close()
	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func attachmentArgs(att *models.Attachment) (any, any, any) {
	if att == nil {
		return nil, nil, nil
	}
	return att.URL, att.Type, att.Name
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
