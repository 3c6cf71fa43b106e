// Package store provides SQLite-backed persistence for accounts and the chat event log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/linechat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for all LineChat entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		pass_hash  BLOB    NOT NULL,
		salt       BLOB    NOT NULL,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS events (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		at      TEXT    NOT NULL,
		kind    TEXT    NOT NULL,
		sender  TEXT    NOT NULL DEFAULT '',
		target  TEXT    NOT NULL DEFAULT '',
		body    TEXT    NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate: %w", err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Users ----

// CreateUser creates a new account and returns it with the assigned ID.
// It validates the username format before inserting and fails with
// ErrUsernameTaken when the name is already registered.
func (s *Store) CreateUser(username string, passHash, salt []byte) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	existing, err := s.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, pass_hash, salt, created_at) VALUES (?, ?, ?, ?)",
		username, passHash, salt, formatDBTime(now))
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:        id,
		Username:  username,
		PassHash:  passHash,
		Salt:      salt,
		CreatedAt: now,
	}, nil
}

// GetUserByUsername retrieves an account by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	return s.getUser("SELECT id, username, pass_hash, salt, created_at FROM users WHERE username = ?", username)
}

// GetUserByID retrieves an account by ID.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return s.getUser("SELECT id, username, pass_hash, salt, created_at FROM users WHERE id = ?", id)
}

func (s *Store) getUser(query string, arg any) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := s.db.QueryRowContext(context.Background(), query, arg).
		Scan(&u.ID, &u.Username, &u.PassHash, &u.Salt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	u.CreatedAt, err = parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all accounts.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, username, pass_hash, salt, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.PassHash, &u.Salt, &createdAt); err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		u.CreatedAt, err = parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

// ---- Events ----

// AppendEvent persists one event log entry and returns its assigned ID.
func (s *Store) AppendEvent(ev model.Event) (int64, error) {
	at := ev.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO events (at, kind, sender, target, body) VALUES (?, ?, ?, ?, ?)",
		formatDBTime(at), ev.Kind.String(), ev.From, ev.To, ev.Text)
	if err != nil {
		return 0, fmt.Errorf("store: append event: %w", err)
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// ListEvents returns the most recent events in chronological order (newest last).
// limit <= 0 returns everything.
func (s *Store) ListEvents(limit int) ([]model.Event, error) {
	query := "SELECT id, at, kind, sender, target, body FROM events ORDER BY id"
	args := []any{}
	if limit > 0 {
		// Take the newest N, then flip back to chronological order.
		query = "SELECT id, at, kind, sender, target, body FROM (SELECT * FROM events ORDER BY id DESC LIMIT ?) ORDER BY id"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var at, kind string
		if err := rows.Scan(&ev.ID, &at, &kind, &ev.From, &ev.To, &ev.Text); err != nil {
			return nil, fmt.Errorf("store: list events: %w", err)
		}
		ev.Time, err = parseDBTime(at)
		if err != nil {
			return nil, fmt.Errorf("store: list events: %w", err)
		}
		ev.Kind = model.ParseEventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	return events, nil
}

// CountEvents returns the total number of persisted events.
func (s *Store) CountEvents() (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return n, nil
}
