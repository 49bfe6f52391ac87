package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const sessionColumns = `s.id, s.user_id, s.title, s.model, s.system_prompt, s.temperature,
	s.max_tokens, s.is_archived, s.is_pinned, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)`

// CreateSession inserts a new session owned by userID.
func (s *Store) CreateSession(ctx context.Context, sess *Session) (*Session, error) {
	now := time.Now().UTC()
	sess.ID = uuid.NewString()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	if sess.Title == "" {
		sess.Title = "New Chat"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, model, system_prompt, temperature, max_tokens, is_archived, is_pinned, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, sess.Model, sess.SystemPrompt, sess.Temperature, sess.MaxTokens, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert session")
	}
	return sess, nil
}

// GetSession fetches one session with its derived message count.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)
	return scanSession(row)
}

// ListSessions returns the caller's sessions, pinned first, most recently
// updated next. Archived sessions are included only when requested.
func (s *Store) ListSessions(ctx context.Context, userID int64, includeArchived bool) ([]*Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.user_id = ?`
	if !includeArchived {
		q += ` AND s.is_archived = 0`
	}
	q += ` ORDER BY s.is_pinned DESC, s.updated_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()
	return collectSessions(rows)
}

// SearchSessions returns the caller's sessions whose title or message content
// matches the query.
func (s *Store) SearchSessions(ctx context.Context, userID int64, query string) ([]*Session, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s
		 WHERE s.user_id = ? AND (s.title LIKE ? OR EXISTS (
			SELECT 1 FROM messages m WHERE m.session_id = s.id AND m.content LIKE ?))
		 ORDER BY s.is_pinned DESC, s.updated_at DESC`,
		userID, like, like)
	if err != nil {
		return nil, errors.Wrap(err, "search sessions")
	}
	defer rows.Close()
	return collectSessions(rows)
}

// RenameSession updates a session's title.
func (s *Store) RenameSession(ctx context.Context, id, title string) error {
	return s.updateSession(ctx, id, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title)
}

// SetSessionPrompt updates a session's custom system prompt override.
func (s *Store) SetSessionPrompt(ctx context.Context, id, systemPrompt string) error {
	return s.updateSession(ctx, id, `UPDATE sessions SET system_prompt = ?, updated_at = ? WHERE id = ?`, systemPrompt)
}

// SetSessionModel updates a session's selected model.
func (s *Store) SetSessionModel(ctx context.Context, id, model string) error {
	return s.updateSession(ctx, id, `UPDATE sessions SET model = ?, updated_at = ? WHERE id = ?`, model)
}

func (s *Store) updateSession(ctx context.Context, id, query string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "update session")
	}
	return requireRow(res)
}

// ToggleArchived flips the archived flag and returns the new value.
func (s *Store) ToggleArchived(ctx context.Context, id string) (bool, error) {
	return s.toggleFlag(ctx, id, "is_archived")
}

// TogglePinned flips the pinned flag and returns the new value.
func (s *Store) TogglePinned(ctx context.Context, id string) (bool, error) {
	return s.toggleFlag(ctx, id, "is_pinned")
}

func (s *Store) toggleFlag(ctx context.Context, id, column string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET `+column+` = 1 - `+column+`, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return false, errors.Wrap(err, "toggle "+column)
	}
	if err := requireRow(res); err != nil {
		return false, err
	}
	var v bool
	if err := s.db.QueryRowContext(ctx, `SELECT `+column+` FROM sessions WHERE id = ?`, id).Scan(&v); err != nil {
		return false, errors.Wrap(err, "read "+column)
	}
	return v, nil
}

// DeleteSession removes a session; its messages cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Model, &sess.SystemPrompt,
		&sess.Temperature, &sess.MaxTokens, &sess.IsArchived, &sess.IsPinned,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan session")
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Model, &sess.SystemPrompt,
			&sess.Temperature, &sess.MaxTokens, &sess.IsArchived, &sess.IsPinned,
			&sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, errors.Wrap(err, "scan session row")
		}
		out = append(out, &sess)
	}
	return out, errors.Wrap(rows.Err(), "iterate sessions")
}
