package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// AppendMessage persists one message at the end of a session's conversation.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "message id")
	}
	return &Message{ID: id, SessionID: sessionID, Role: role, Content: content, CreatedAt: now}, nil
}

// Messages returns a session's full conversation in chronological order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()
	return collectMessages(rows)
}

// RecentMessages returns the last n messages of a session in chronological
// order. Truncation drops the oldest.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, errors.Wrap(err, "recent messages")
	}
	defer rows.Close()
	out, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// RecentMessagesBefore is RecentMessages restricted to messages older than
// beforeID. Used to load history excluding a just-persisted user message.
func (s *Store) RecentMessagesBefore(ctx context.Context, sessionID string, beforeID int64, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? AND id < ? ORDER BY id DESC LIMIT ?`,
		sessionID, beforeID, n)
	if err != nil {
		return nil, errors.Wrap(err, "recent messages before")
	}
	defer rows.Close()
	out, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// LastMessages returns the final n messages in chronological order.
func (s *Store) LastMessages(ctx context.Context, sessionID string, n int) ([]Message, error) {
	return s.RecentMessages(ctx, sessionID, n)
}

// DeleteMessage removes a single message by ID.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete message")
	}
	return requireRow(res)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate messages")
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
