package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID  int64
	nextEventID int64

	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
	events          []model.Event
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(nil)
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		nextEventID:     1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// CreateUser creates a new account, mirroring Store.CreateUser semantics.
func (m *MemoryStore) CreateUser(username string, passHash, salt []byte) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usersByUsername[username]; ok {
		return nil, ErrUsernameTaken
	}

	u := &model.User{
		ID:        m.nextUserID,
		Username:  username,
		PassHash:  append([]byte(nil), passHash...),
		Salt:      append([]byte(nil), salt...),
		CreatedAt: m.now(),
	}
	m.nextUserID++
	m.usersByID[u.ID] = u
	m.usersByUsername[u.Username] = u

	out := *u
	return &out, nil
}

// GetUserByUsername retrieves an account by username. Returns (nil, nil) if not found.
func (m *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

// GetUserByID retrieves an account by ID. Returns (nil, nil) if not found.
func (m *MemoryStore) GetUserByID(id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByID[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

// ListUsers returns all accounts ordered by ID.
func (m *MemoryStore) ListUsers() ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]model.User, 0, len(m.usersByID))
	for id := int64(1); id < m.nextUserID; id++ {
		if u, ok := m.usersByID[id]; ok {
			users = append(users, *u)
		}
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users, nil
}

// AppendEvent records one event log entry.
func (m *MemoryStore) AppendEvent(ev model.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextEventID
	m.nextEventID++
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}
	m.events = append(m.events, ev)
	return ev.ID, nil
}

// ListEvents returns the most recent events, newest last.
func (m *MemoryStore) ListEvents(limit int) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.events) > limit {
		start = len(m.events) - limit
	}
	if start >= len(m.events) {
		return nil, nil
	}
	out := make([]model.Event, len(m.events)-start)
	copy(out, m.events[start:])
	return out, nil
}

// CountEvents returns the total number of recorded events.
func (m *MemoryStore) CountEvents() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events)), nil
}
