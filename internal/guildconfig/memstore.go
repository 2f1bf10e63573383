package guildconfig

import (
	"context"
	"errors"
	"sync"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
)

// ErrNotFound is returned by MemStore when a guild has no stored config.
var ErrNotFound = errors.New("guildconfig: not found")

// MemStore is an in-process Store, primarily for tests and for running
// without an external configuration backend.
type MemStore struct {
	mu   sync.RWMutex
	rows map[platform.GuildID]domain.GuildConfig

	// FailNext, if set, makes the next Load call return this error
	// instead of consulting rows. Used to exercise the cache's
	// store-unreachable fallback path deterministically.
	FailNext error
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[platform.GuildID]domain.GuildConfig)}
}

func (s *MemStore) Load(ctx context.Context, guild platform.GuildID) (domain.GuildConfig, error) {
	s.mu.Lock()
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		s.mu.Unlock()
		return domain.GuildConfig{}, err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.rows[guild]
	if !ok {
		return domain.GuildConfig{}, ErrNotFound
	}
	return cfg, nil
}

func (s *MemStore) Save(ctx context.Context, guild platform.GuildID, cfg domain.GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[guild] = cfg
	return nil
}
