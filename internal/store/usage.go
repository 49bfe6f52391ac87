package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RecordTurn finalizes a successful turn: it persists the assistant message,
// bumps the session's updated_at and records usage, all in one transaction so
// a session is never bumped without its assistant reply.
func (s *Store) RecordTurn(ctx context.Context, userID int64, sessionID, assistantContent string, tokens int, cost float64) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin turn tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, RoleAssistant, assistantContent, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert assistant message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "assistant message id")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return nil, errors.Wrap(err, "bump session")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO token_usage (user_id, session_id, tokens_used, cost, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, sessionID, tokens, cost, now); err != nil {
		return nil, errors.Wrap(err, "insert usage")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit turn tx")
	}
	return &Message{ID: id, SessionID: sessionID, Role: RoleAssistant, Content: assistantContent, CreatedAt: now}, nil
}

// UsageSummary returns a user's total tokens and cost.
func (s *Store) UsageSummary(ctx context.Context, userID int64) (int, float64, error) {
	var tokens int
	var cost float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost), 0) FROM token_usage WHERE user_id = ?`,
		userID).Scan(&tokens, &cost)
	if err != nil {
		return 0, 0, errors.Wrap(err, "usage summary")
	}
	return tokens, cost, nil
}

// SessionUsage returns the usage records for one session, newest first.
func (s *Store) SessionUsage(ctx context.Context, sessionID string) ([]Usage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, tokens_used, cost, created_at FROM token_usage
		 WHERE session_id = ? ORDER BY id DESC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "session usage")
	}
	defer rows.Close()
	var out []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.ID, &u.UserID, &u.SessionID, &u.TokensUsed, &u.Cost, &u.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan usage")
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "iterate usage")
}
