// Package auth verifies that a submission was signed by the account it claims to act for.
package auth

import (
	"context"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
	"github.com/Proton-105/lesson-ledger/internal/instruction"
)

// Authenticator checks a submission and returns the instruction it authorizes.
type Authenticator interface {
	Authenticate(ctx context.Context, sub instruction.Submission) (instruction.Instruction, error)
}

// Ed25519Authenticator verifies submissions against the signer's Ed25519 public key.
type Ed25519Authenticator struct {
	programID solana.PublicKey
}

// NewEd25519Authenticator builds an authenticator for messages addressed to programID.
func NewEd25519Authenticator(programID solana.PublicKey) *Ed25519Authenticator {
	return &Ed25519Authenticator{programID: programID}
}

// Authenticate verifies the signature, decodes the instruction and checks the user account is the signer.
func (a *Ed25519Authenticator) Authenticate(ctx context.Context, sub instruction.Submission) (instruction.Instruction, error) {
	if err := ctx.Err(); err != nil {
		return instruction.Instruction{}, err
	}

	if err := sub.Verify(); err != nil {
		return instruction.Instruction{}, err
	}

	msg, err := instruction.ParseMessage(sub.Message)
	if err != nil {
		return instruction.Instruction{}, err
	}
	ix, err := msg.Instruction(a.programID)
	if err != nil {
		return instruction.Instruction{}, err
	}

	if !ix.User.Equals(sub.Signer) {
		return instruction.Instruction{}, apperrors.NewUnauthorizedError("user account %s did not sign the submission", ix.User)
	}

	return ix, nil
}
