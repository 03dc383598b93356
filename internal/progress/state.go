// Package progress implements the user progress ledger: its account records, storage backends and state machine.
package progress

import (
	"slices"

	"github.com/gagliardetto/solana-go"
)

// AccountState is the lifecycle state of a progress account.
type AccountState string

const (
	// StateUninitialized means no record exists at the account address.
	StateUninitialized AccountState = "uninitialized"
	// StateActive means the record exists and accepts lesson completions.
	StateActive AccountState = "active"
)

// UserProgress is the persisted progress record of one user.
type UserProgress struct {
	Address          solana.PublicKey `json:"address"`
	Owner            solana.PublicKey `json:"owner"`
	CompletedLessons []string         `json:"completed_lessons"`
	Points           uint32           `json:"points"`
	AllocatedBalance uint64           `json:"allocated_balance"`
	Bump             uint8            `json:"bump"`
}

// HasCompleted reports whether lessonID is already recorded.
func (p *UserProgress) HasCompleted(lessonID string) bool {
	return slices.Contains(p.CompletedLessons, lessonID)
}

// Clone returns a deep copy of the record.
func (p *UserProgress) Clone() *UserProgress {
	if p == nil {
		return nil
	}

	c := *p
	c.CompletedLessons = append(make([]string, 0, len(p.CompletedLessons)), p.CompletedLessons...)
	return &c
}
