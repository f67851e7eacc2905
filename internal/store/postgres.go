package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tickbox/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertGoogleUser inserts the user on first sign-in and refreshes the
// profile fields on every subsequent one. The identity provider owns these
// values; the application never edits them.
func (s *PostgresStore) UpsertGoogleUser(ctx context.Context, googleID, displayName, avatarURL, email string) (User, error) {
	const query = `
		INSERT INTO users (id, google_id, display_name, avatar_url, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (google_id) DO UPDATE
			SET display_name = EXCLUDED.display_name,
			    avatar_url = EXCLUDED.avatar_url,
			    email = EXCLUDED.email
		RETURNING id, google_id, display_name, avatar_url, email, created_at
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, util.NewID("usr"), googleID, displayName, avatarURL, email).
		Scan(&user.ID, &user.GoogleID, &user.DisplayName, &user.AvatarURL, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const query = `SELECT id, google_id, display_name, avatar_url, email, created_at FROM users WHERE id=$1`
	var user User
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.GoogleID, &user.DisplayName, &user.AvatarURL, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListTodos returns the owner's todos, newest creation first. The id
// tiebreak keeps the order stable when timestamps collide.
func (s *PostgresStore) ListTodos(ctx context.Context, ownerID string) ([]Todo, error) {
	const query = `
		SELECT id, owner_id, title, description, completed, created_at
		FROM todos
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []Todo{}
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}

func (s *PostgresStore) InsertTodo(ctx context.Context, ownerID, title, description string) (Todo, error) {
	const query = `
		INSERT INTO todos (id, owner_id, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, title, description, completed, created_at
	`
	var t Todo
	err := s.db.QueryRowContext(ctx, query, util.NewID("todo"), ownerID, title, description).
		Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

// UpdateTodo applies the patch in a single owner-filtered statement. A row
// that exists but belongs to someone else is indistinguishable from a row
// that does not exist: both come back as sql.ErrNoRows. Doing the ownership
// check inside the predicate also closes the race between a concurrent
// delete and this update.
func (s *PostgresStore) UpdateTodo(ctx context.Context, ownerID, id string, patch TodoPatch) (Todo, error) {
	const query = `
		UPDATE todos
		SET title = COALESCE($3::text, title),
		    description = COALESCE($4::text, description),
		    completed = COALESCE($5::boolean, completed)
		WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, title, description, completed, created_at
	`
	var t Todo
	err := s.db.QueryRowContext(ctx, query, id, ownerID, patch.Title, patch.Description, patch.Completed).
		Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Todo{}, err
	}
	if err != nil {
		return Todo{}, fmt.Errorf("update todo: %w", err)
	}
	return t, nil
}

// DeleteTodo removes the row with the same owner-in-predicate rule as
// UpdateTodo. Zero affected rows surfaces as sql.ErrNoRows.
func (s *PostgresStore) DeleteTodo(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Session persistence used when Redis is not configured. Expiry is part of
// the lookup predicate; expired rows are swept opportunistically on save.

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.google_id, u.display_name, u.avatar_url, u.email, u.created_at
		FROM sessions se
		JOIN users u ON u.id = se.user_id
		WHERE se.token_hash = $1
			AND se.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.GoogleID, &user.DisplayName, &user.AvatarURL, &user.Email, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
