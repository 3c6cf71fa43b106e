package store

import (
	"errors"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// ErrUsernameTaken is returned by CreateUser when the account name exists.
var ErrUsernameTaken = errors.New("store: username already taken")

// DataStore defines the persistence interface for LineChat entities.
// Implementations include the default SQLite store and an in-memory store
// for tests.
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Users ----

	// CreateUser creates a new account with the given Argon2id digest and salt,
	// returning it with the assigned ID. Fails with ErrUsernameTaken when the
	// name is already registered.
	CreateUser(username string, passHash, salt []byte) (*model.User, error)

	// GetUserByUsername retrieves an account by username. Returns (nil, nil) if not found.
	GetUserByUsername(username string) (*model.User, error)

	// GetUserByID retrieves an account by ID. Returns (nil, nil) if not found.
	GetUserByID(id int64) (*model.User, error)

	// ListUsers returns all accounts.
	ListUsers() ([]model.User, error)

	// ---- Events ----

	// AppendEvent persists one event log entry and returns its assigned ID.
	AppendEvent(ev model.Event) (int64, error)

	// ListEvents returns the most recent events, newest last.
	// limit <= 0 returns everything.
	ListEvents(limit int) ([]model.Event, error)

	// CountEvents returns the total number of persisted events.
	CountEvents() (int64, error)
}

// Compile-time checks: both stores implement DataStore.
var _ DataStore = (*Store)(nil)
var _ DataStore = (*MemoryStore)(nil)
