package favorites

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
)

// ErrNotFavorite is returned when removing a tool the user never saved
var ErrNotFavorite = errors.New("tool is not a favorite")

// Favorite is a tool a user pinned in the account UI
type Favorite struct {
	ToolID    string    `json:"toolId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists per-user favorite tools. Add is idempotent.
type Store interface {
	List(ctx context.Context, userID string) ([]Favorite, error)
	Add(ctx context.Context, userID, toolID string) error
	Remove(ctx context.Context, userID, toolID string) error
}

// PostgresStore keeps favorites in the favorites table
type PostgresStore struct {
	conns *postgres.ConnectionManager
}

// NewPostgresStore creates a favorites store
func NewPostgresStore(conns *postgres.ConnectionManager) *PostgresStore {
	return &PostgresStore{conns: conns}
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Favorite, error) {
	query := `
		SELECT tool_id, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC, tool_id
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	favs := make([]Favorite, 0)
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ToolID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

func (s *PostgresStore) Add(ctx context.Context, userID, toolID string) error {
	query := `
		INSERT INTO favorites (user_id, tool_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, tool_id) DO NOTHING
	`

	if _, err := s.conns.Primary().ExecContext(ctx, query, userID, toolID); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, userID, toolID string) error {
	query := `DELETE FROM favorites WHERE user_id = $1 AND tool_id = $2`

	result, err := s.conns.Primary().ExecContext(ctx, query, userID, toolID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if n == 0 {
		return ErrNotFavorite
	}
	return nil
}

// MemoryStore is an in-process Store for tests and dev mode
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]time.Time
	now   func() time.Time
}

// NewMemoryStore creates an empty favorites store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]time.Time),
		now:   time.Now,
	}
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	favs := make([]Favorite, 0, len(s.users[userID]))
	for toolID, created := range s.users[userID] {
		favs = append(favs, Favorite{ToolID: toolID, CreatedAt: created})
	}
	sort.Slice(favs, func(i, j int) bool {
		if !favs[i].CreatedAt.Equal(favs[j].CreatedAt) {
			return favs[i].CreatedAt.After(favs[j].CreatedAt)
		}
		return favs[i].ToolID < favs[j].ToolID
	})
	return favs, nil
}

func (s *MemoryStore) Add(_ context.Context, userID, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		set = make(map[string]time.Time)
		s.users[userID] = set
	}
	if _, exists := set[toolID]; !exists {
		set[toolID] = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID][toolID]; !ok {
		return ErrNotFavorite
	}
	delete(s.users[userID], toolID)
	return nil
}
