package progress

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

// MemoryStorage keeps records in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[solana.PublicKey]*UserProgress
}

// NewMemoryStorage creates an empty in-memory Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[solana.PublicKey]*UserProgress)}
}

// Load returns a copy of the stored record.
func (s *MemoryStorage) Load(ctx context.Context, address solana.PublicKey) (*UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[address]
	if !ok {
		return nil, apperrors.NewRecordNotFoundError(address.String())
	}
	return p.Clone(), nil
}

// Create stores p unless a record already exists at its address.
func (s *MemoryStorage) Create(ctx context.Context, p *UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[p.Address]; ok {
		return apperrors.NewAlreadyInitializedError(p.Address.String())
	}
	s.records[p.Address] = p.Clone()
	return nil
}

// Update runs fn on a copy and commits it only when fn succeeds.
func (s *MemoryStorage) Update(ctx context.Context, address solana.PublicKey, fn MutateFunc) (*UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[address]
	if !ok {
		return nil, apperrors.NewRecordNotFoundError(address.String())
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.records[address] = next.Clone()
	return next, nil
}

// List returns all records ordered by address.
func (s *MemoryStorage) List(ctx context.Context) ([]*UserProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*UserProgress, 0, len(s.records))
	for _, p := range s.records {
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address.String() < result[j].Address.String()
	})
	return result, nil
}
