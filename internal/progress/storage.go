package progress

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// MutateFunc changes a record in place during an atomic update. Returning an error aborts the write.
type MutateFunc func(p *UserProgress) error

// Storage defines the persistence contract for progress records.
type Storage interface {
	// Load returns the record at address or a RecordNotFound error.
	Load(ctx context.Context, address solana.PublicKey) (*UserProgress, error)
	// Create stores a new record, failing with AlreadyInitialized when one exists.
	Create(ctx context.Context, p *UserProgress) error
	// Update applies fn to the stored record and persists the result atomically.
	Update(ctx context.Context, address solana.PublicKey, fn MutateFunc) (*UserProgress, error)
	// List returns every stored record.
	List(ctx context.Context) ([]*UserProgress, error)
}
