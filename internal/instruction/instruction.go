// Package instruction encodes and decodes the ledger program's instructions and signed submissions.
package instruction

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

// Kind identifies one of the program's instructions.
type Kind string

const (
	KindInitializeUser Kind = "initialize_user"
	KindCompleteLesson Kind = "complete_lesson"
)

var (
	InitializeUserDiscriminator = AnchorDiscriminator("global", string(KindInitializeUser))
	CompleteLessonDiscriminator = AnchorDiscriminator("global", string(KindCompleteLesson))
)

// Account positions inside an instruction.
const (
	AccountUserProgress = iota
	AccountUser
	accountCount
)

// CompleteLessonArgs are the arguments of complete_lesson.
type CompleteLessonArgs struct {
	LessonID      string `json:"lesson_id"`
	PointsAwarded uint32 `json:"points_awarded"`
	RewardAmount  uint64 `json:"reward_amount"`
}

// Instruction is a decoded program instruction.
type Instruction struct {
	Kind         Kind
	UserProgress solana.PublicKey
	User         solana.PublicKey
	Lesson       *CompleteLessonArgs
}

// NewInitializeUser builds an initialize_user instruction.
func NewInitializeUser(userProgress, user solana.PublicKey) Instruction {
	return Instruction{Kind: KindInitializeUser, UserProgress: userProgress, User: user}
}

// NewCompleteLesson builds a complete_lesson instruction.
func NewCompleteLesson(userProgress, user solana.PublicKey, args CompleteLessonArgs) Instruction {
	return Instruction{Kind: KindCompleteLesson, UserProgress: userProgress, User: user, Lesson: &args}
}

// Data encodes the instruction data: discriminator followed by Borsh arguments.
func (ix Instruction) Data() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	switch ix.Kind {
	case KindInitializeUser:
		if err := enc.WriteBytes(InitializeUserDiscriminator[:], false); err != nil {
			return nil, err
		}
	case KindCompleteLesson:
		if ix.Lesson == nil {
			return nil, apperrors.NewInvalidArgumentError("complete_lesson requires arguments")
		}
		if err := enc.WriteBytes(CompleteLessonDiscriminator[:], false); err != nil {
			return nil, err
		}
		if err := WriteString(enc, ix.Lesson.LessonID); err != nil {
			return nil, err
		}
		if err := enc.WriteUint32(ix.Lesson.PointsAwarded, binary.LittleEndian); err != nil {
			return nil, err
		}
		if err := enc.WriteUint64(ix.Lesson.RewardAmount, binary.LittleEndian); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewInvalidArgumentError("unknown instruction %q", ix.Kind)
	}

	return buf.Bytes(), nil
}

// Accounts returns the instruction's account list in program order.
func (ix Instruction) Accounts() []solana.PublicKey {
	return []solana.PublicKey{ix.UserProgress, ix.User}
}

// Decode rebuilds an instruction from its account list and data.
func Decode(accounts []solana.PublicKey, data []byte) (Instruction, error) {
	if len(accounts) != accountCount {
		return Instruction{}, apperrors.NewInvalidArgumentError("expected %d accounts, got %d", accountCount, len(accounts))
	}
	if len(data) < DiscriminatorSize {
		return Instruction{}, apperrors.NewInvalidArgumentError("instruction data too short: %d bytes", len(data))
	}

	var disc Discriminator
	copy(disc[:], data[:DiscriminatorSize])

	ix := Instruction{
		UserProgress: accounts[AccountUserProgress],
		User:         accounts[AccountUser],
	}
	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])

	switch disc {
	case InitializeUserDiscriminator:
		ix.Kind = KindInitializeUser
	case CompleteLessonDiscriminator:
		ix.Kind = KindCompleteLesson
		args, err := decodeCompleteLesson(dec)
		if err != nil {
			return Instruction{}, apperrors.NewInvalidArgumentError("decode complete_lesson: %v", err)
		}
		ix.Lesson = args
	default:
		return Instruction{}, apperrors.NewInvalidArgumentError("unknown instruction discriminator %v", disc)
	}

	if dec.Remaining() != 0 {
		return Instruction{}, apperrors.NewInvalidArgumentError("%d trailing bytes after %s arguments", dec.Remaining(), ix.Kind)
	}

	return ix, nil
}

func decodeCompleteLesson(dec *bin.Decoder) (*CompleteLessonArgs, error) {
	lessonID, err := ReadString(dec)
	if err != nil {
		return nil, fmt.Errorf("lesson_id: %w", err)
	}
	points, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	reward, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("reward_amount: %w", err)
	}

	return &CompleteLessonArgs{LessonID: lessonID, PointsAwarded: points, RewardAmount: reward}, nil
}
