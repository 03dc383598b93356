// Package pda derives the program-derived address of a user's progress account.
package pda

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

// DefaultSeed is the domain-separation seed of the user progress account.
const DefaultSeed = "user-progress"

// Derivation is a derived account address together with the bump that produced it.
type Derivation struct {
	Address solana.PublicKey `json:"address"`
	Bump    uint8            `json:"bump"`
}

// AddressFunc computes an address from seeds; it must fail for on-curve results.
type AddressFunc func(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error)

// Deriver computes per-user progress account addresses for one program.
type Deriver struct {
	programID solana.PublicKey
	seed      []byte
	create    AddressFunc
}

// Option customises a Deriver.
type Option func(*Deriver)

// WithSeed overrides the domain-separation seed.
func WithSeed(seed string) Option {
	return func(d *Deriver) {
		d.seed = []byte(seed)
	}
}

// WithAddressFunc replaces the address function used during the bump search.
func WithAddressFunc(fn AddressFunc) Option {
	return func(d *Deriver) {
		if fn != nil {
			d.create = fn
		}
	}
}

// NewDeriver builds a Deriver for programID.
func NewDeriver(programID solana.PublicKey, opts ...Option) (*Deriver, error) {
	d := &Deriver{
		programID: programID,
		seed:      []byte(DefaultSeed),
		create:    solana.CreateProgramAddress,
	}
	for _, opt := range opts {
		opt(d)
	}

	if len(d.seed) == 0 || len(d.seed) > solana.MaxSeedLength {
		return nil, apperrors.NewInvalidArgumentError("seed must be 1..%d bytes, got %d", solana.MaxSeedLength, len(d.seed))
	}

	return d, nil
}

// ProgramID returns the program the derived accounts belong to.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// Seed returns a copy of the domain-separation seed.
func (d *Deriver) Seed() []byte {
	return append([]byte(nil), d.seed...)
}

// Derive finds the canonical address for user, searching bumps from 255 down to 0.
func (d *Deriver) Derive(user solana.PublicKey) (Derivation, error) {
	for bump := math.MaxUint8; bump >= 0; bump-- {
		address, err := d.create(d.seeds(user, uint8(bump)), d.programID)
		if err != nil {
			continue
		}

		return Derivation{Address: address, Bump: uint8(bump)}, nil
	}

	return Derivation{}, apperrors.NewDerivationExhaustedError(user.String())
}

// Verify recomputes the address of user with a stored bump and checks it equals address.
func (d *Deriver) Verify(user, address solana.PublicKey, bump uint8) error {
	expected, err := d.create(d.seeds(user, bump), d.programID)
	if err != nil {
		return apperrors.NewUnauthorizedError("bump %d is not valid for %s: %v", bump, user, err)
	}

	if !expected.Equals(address) {
		return apperrors.NewUnauthorizedError("account %s is not the progress account of %s", address, user)
	}

	return nil
}

func (d *Deriver) seeds(user solana.PublicKey, bump uint8) [][]byte {
	return [][]byte{d.seed, user.Bytes(), {bump}}
}

func (d Derivation) String() string {
	return fmt.Sprintf("%s (bump %d)", d.Address, d.Bump)
}
