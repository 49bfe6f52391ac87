package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// CreateUser inserts a new user. The password must already be hashed.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_active, created_at) VALUES (?, ?, ?, 1, ?)`,
		username, email, passwordHash, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "user id")
	}
	return &User{ID: id, Username: username, Email: email, PasswordHash: passwordHash, IsActive: true, CreatedAt: now}, nil
}

// GetUserByUsername looks a user up by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE username = ?`, username))
}

// GetUser looks a user up by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan user")
	}
	return &u, nil
}
