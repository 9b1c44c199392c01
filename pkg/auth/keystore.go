package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
)

// ErrKeyNotFound is returned when no active key matches
var ErrKeyNotFound = errors.New("api key not found")

// APIKey is a stored credential. Only the digest of the secret is kept.
type APIKey struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	Hash      string     `json:"-"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Revoked reports whether the key has been revoked
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// KeyStore persists API keys
type KeyStore interface {
	// LookupByHash returns the active key with the given digest
	LookupByHash(ctx context.Context, hash string) (*APIKey, error)
	Create(ctx context.Context, key *APIKey) error
	List(ctx context.Context, userID string) ([]*APIKey, error)
	// Revoke marks the user's key revoked and returns its digest
	Revoke(ctx context.Context, userID, keyID string) (string, error)
}

// NewAPIKey generates a key for userID. The plaintext is returned separately
// and is not recoverable from the record.
func NewAPIKey(userID, name string) (*APIKey, string, error) {
	token, hash, prefix, err := GenerateToken()
	if err != nil {
		return nil, "", err
	}
	return &APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Prefix:    prefix,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}, token, nil
}

// PostgresKeyStore stores keys in the api_keys table
type PostgresKeyStore struct {
	conns *postgres.ConnectionManager
}

// NewPostgresKeyStore creates a key store
func NewPostgresKeyStore(conns *postgres.ConnectionManager) *PostgresKeyStore {
	return &PostgresKeyStore{conns: conns}
}

func (s *PostgresKeyStore) LookupByHash(ctx context.Context, hash string) (*APIKey, error) {
	query := `
		SELECT id, user_id, name, key_prefix, key_hash, created_at
		FROM api_keys
		WHERE key_hash = $1 AND revoked_at IS NULL
	`

	key := &APIKey{}
	err := s.conns.Replica().QueryRowContext(ctx, query, hash).Scan(
		&key.ID, &key.UserID, &key.Name, &key.Prefix, &key.Hash, &key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return key, nil
}

func (s *PostgresKeyStore) Create(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.conns.Primary().ExecContext(ctx, query,
		key.ID, key.UserID, key.Name, key.Prefix, key.Hash, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (s *PostgresKeyStore) List(ctx context.Context, userID string) ([]*APIKey, error) {
	query := `
		SELECT id, user_id, name, key_prefix, created_at, revoked_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*APIKey, 0)
	for rows.Next() {
		key := &APIKey{}
		var revokedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.UserID, &key.Name, &key.Prefix, &key.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if revokedAt.Valid {
			key.RevokedAt = &revokedAt.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresKeyStore) Revoke(ctx context.Context, userID, keyID string) (string, error) {
	query := `
		UPDATE api_keys SET revoked_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
		RETURNING key_hash
	`

	var hash string
	err := s.conns.Primary().QueryRowContext(ctx, query, keyID, userID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to revoke api key: %w", err)
	}
	return hash, nil
}

// MemoryKeyStore is an in-process KeyStore for tests and dev mode
type MemoryKeyStore struct {
	mu     sync.RWMutex
	byID   map[string]*APIKey
	byHash map[string]string
}

// NewMemoryKeyStore creates an empty key store
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		byID:   make(map[string]*APIKey),
		byHash: make(map[string]string),
	}
}

func (s *MemoryKeyStore) LookupByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byID[s.byHash[hash]]
	if !ok || key.Revoked() {
		return nil, ErrKeyNotFound
	}
	clone := *key
	return &clone, nil
}

func (s *MemoryKeyStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[key.Hash]; exists {
		return fmt.Errorf("failed to create api key: duplicate hash")
	}
	clone := *key
	s.byID[key.ID] = &clone
	s.byHash[key.Hash] = key.ID
	return nil
}

func (s *MemoryKeyStore) List(_ context.Context, userID string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*APIKey, 0)
	for _, key := range s.byID {
		if key.UserID == userID {
			clone := *key
			keys = append(keys, &clone)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *MemoryKeyStore) Revoke(_ context.Context, userID, keyID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[keyID]
	if !ok || key.UserID != userID || key.Revoked() {
		return "", ErrKeyNotFound
	}
	now := time.Now().UTC()
	key.RevokedAt = &now
	return key.Hash, nil
}
