package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// These tests exercise the owner-in-predicate invariants against a real
// database. They skip unless TEST_DATABASE_URL points at a disposable
// Postgres instance.

func getTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	// Each run works with fresh rows; clear leftovers from aborted runs.
	for _, table := range []string{"sessions", "todos", "users"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clear %s: %v", table, err)
		}
	}

	return NewPostgresStore(db)
}

func seedUser(t *testing.T, s *PostgresStore, googleID, name string) User {
	t.Helper()
	user, err := s.UpsertGoogleUser(context.Background(), googleID, name, "", name+"@example.com")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user
}

func TestCrossOwnerAccessIsNotFound(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "g-alice", "alice")
	bob := seedUser(t, s, "g-bob", "bob")

	todo, err := s.InsertTodo(ctx, alice.ID, "Buy milk", "")
	if err != nil {
		t.Fatalf("insert todo: %v", err)
	}

	completed := true
	if _, err := s.UpdateTodo(ctx, bob.ID, todo.ID, TodoPatch{Completed: &completed}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for cross-owner update, got %v", err)
	}
	if err := s.DeleteTodo(ctx, bob.ID, todo.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for cross-owner delete, got %v", err)
	}

	// Bob's probing must not have touched Alice's row.
	todos, err := s.ListTodos(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(todos) != 1 || todos[0].Completed {
		t.Fatalf("expected alice's todo untouched, got %+v", todos)
	}

	// And Bob's own list stays empty.
	todos, err = s.ListTodos(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(todos) != 0 {
		t.Fatalf("expected empty list for bob, got %+v", todos)
	}
}

func TestPartialUpdateLeavesOmittedFieldsUnchanged(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "g-alice", "alice")

	todo, err := s.InsertTodo(ctx, alice.ID, "Buy milk", "2% please")
	if err != nil {
		t.Fatalf("insert todo: %v", err)
	}

	completed := true
	updated, err := s.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Completed: &completed})
	if err != nil {
		t.Fatalf("update todo: %v", err)
	}
	if !updated.Completed {
		t.Fatal("expected completed=true")
	}
	if updated.Title != "Buy milk" || updated.Description != "2% please" {
		t.Fatalf("expected omitted fields unchanged, got %+v", updated)
	}
	if updated.ID != todo.ID || updated.OwnerID != todo.OwnerID || !updated.CreatedAt.Equal(todo.CreatedAt) {
		t.Fatalf("immutable fields changed: %+v vs %+v", updated, todo)
	}

	// An empty patch is a no-op, not a null-out.
	same, err := s.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{})
	if err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if same.Title != "Buy milk" || same.Description != "2% please" || !same.Completed {
		t.Fatalf("empty patch changed the row: %+v", same)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "g-alice", "alice")

	if _, err := s.InsertTodo(ctx, alice.ID, "first", ""); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertTodo(ctx, alice.ID, "second", ""); err != nil {
		t.Fatalf("insert: %v", err)
	}

	todos, err := s.ListTodos(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}
	if todos[0].CreatedAt.Before(todos[1].CreatedAt) {
		t.Fatalf("expected newest first: %v before %v", todos[0].CreatedAt, todos[1].CreatedAt)
	}
}

func TestDeleteThenAnyAccessIsNotFound(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "g-alice", "alice")

	todo, err := s.InsertTodo(ctx, alice.ID, "Buy milk", "")
	if err != nil {
		t.Fatalf("insert todo: %v", err)
	}

	if err := s.DeleteTodo(ctx, alice.ID, todo.ID); err != nil {
		t.Fatalf("delete todo: %v", err)
	}
	if err := s.DeleteTodo(ctx, alice.ID, todo.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
	completed := true
	if _, err := s.UpdateTodo(ctx, alice.ID, todo.ID, TodoPatch{Completed: &completed}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after delete, got %v", err)
	}
}

func TestUpsertGoogleUserIsIdempotentPerGoogleID(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertGoogleUser(ctx, "g-1", "Avery", "https://img/a.png", "avery@example.com")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := s.UpsertGoogleUser(ctx, "g-1", "Avery Q", "https://img/b.png", "avery@example.com")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected stable user id, got %s then %s", first.ID, second.ID)
	}
	if second.DisplayName != "Avery Q" || second.AvatarURL != "https://img/b.png" {
		t.Fatalf("expected refreshed profile fields, got %+v", second)
	}
}

func futureTime() time.Time {
	return time.Now().Add(time.Hour)
}

func TestSessionFallbackStore(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "g-alice", "alice")

	if err := s.SaveSession(ctx, "hash-1", alice, futureTime()); err != nil {
		t.Fatalf("save session: %v", err)
	}
	user, err := s.LookupSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("lookup session: %v", err)
	}
	if user.ID != alice.ID {
		t.Fatalf("expected %s, got %s", alice.ID, user.ID)
	}

	if err := s.RevokeSession(ctx, "hash-1"); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, err := s.LookupSession(ctx, "hash-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows after revoke, got %v", err)
	}
}
