package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user row.
//
// ON CONFLICT DO NOTHING instead of a plain INSERT:
// two verifications for a brand-new phone can race to create the row. The
// loser must learn that it lost (so it can re-read the winner's profile_id)
// rather than get an opaque constraint error, so we check RowsAffected.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (phone, profile_id, name, email, created_at, last_login)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO NOTHING`,
		user.Phone,
		user.ProfileID,
		nullString(user.Name),
		nullString(user.Email),
		user.CreatedAt,
		user.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Phone, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking insert of user %s: %w", user.Phone, err)
	}
	if n == 0 {
		return apperror.Conflict("user", user.Phone)
	}

	return nil
}

// GetByPhone retrieves a user by canonical phone number.
// Returns apperror.ErrNotFound if no user exists for that phone.
func (db *DB) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var (
		u     model.User
		name  sql.NullString
		email sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT phone, profile_id, name, email, created_at, last_login
		 FROM users WHERE phone = ?`,
		phone,
	).Scan(
		&u.Phone,
		&u.ProfileID,
		&name,
		&email,
		&u.CreatedAt,
		&u.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", phone)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", phone, err)
	}

	u.Name = stringPtr(name)
	u.Email = stringPtr(email)
	return &u, nil
}

// TouchLogin records a successful login for an existing user.
// Returns apperror.ErrNotFound if the phone has no row.
func (db *DB) TouchLogin(ctx context.Context, phone string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE phone = ?`,
		at, phone,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating last_login for %s: %w", phone, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking last_login update for %s: %w", phone, err)
	}
	if n == 0 {
		return apperror.NotFound("user", phone)
	}
	return nil
}

// nullString maps an optional Go string onto a nullable column.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
