package progress

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/lesson-ledger/internal/instruction"
)

// AccountDiscriminator tags every encoded UserProgress blob.
var AccountDiscriminator = instruction.AnchorDiscriminator("account", "UserProgress")

// AccountSpace returns the byte size reserved for a record holding up to maxLessons ids of maxLessonIDLength bytes.
func AccountSpace(maxLessons, maxLessonIDLength int) int {
	return instruction.DiscriminatorSize +
		solana.PublicKeyLength + // owner
		4 + maxLessons*(4+maxLessonIDLength) + // completed_lessons
		4 + // points
		8 + // allocated_balance
		1 // bump
}

// EncodeAccount serializes p into its on-ledger layout. The address is not part of the blob.
func EncodeAccount(p *UserProgress) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := enc.WriteBytes(AccountDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := instruction.WritePublicKey(enc, p.Owner); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(p.CompletedLessons)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, lesson := range p.CompletedLessons {
		if err := instruction.WriteString(enc, lesson); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint32(p.Points, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(p.AllocatedBalance, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(p.Bump); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeAccount parses a blob written by EncodeAccount and attaches address.
func DecodeAccount(address solana.PublicKey, data []byte) (*UserProgress, error) {
	if len(data) < instruction.DiscriminatorSize || !bytes.Equal(data[:instruction.DiscriminatorSize], AccountDiscriminator[:]) {
		return nil, fmt.Errorf("account %s: discriminator mismatch", address)
	}

	dec := bin.NewBorshDecoder(data[instruction.DiscriminatorSize:])
	p := &UserProgress{Address: address}

	owner, err := instruction.ReadPublicKey(dec)
	if err != nil {
		return nil, fmt.Errorf("account %s: owner: %w", address, err)
	}
	p.Owner = owner

	count, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("account %s: lesson count: %w", address, err)
	}
	// each entry needs at least its 4-byte length prefix
	if int(count) > dec.Remaining()/4 {
		return nil, fmt.Errorf("account %s: lesson count %d exceeds data", address, count)
	}
	p.CompletedLessons = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		lesson, err := instruction.ReadString(dec)
		if err != nil {
			return nil, fmt.Errorf("account %s: lesson %d: %w", address, i, err)
		}
		p.CompletedLessons = append(p.CompletedLessons, lesson)
	}

	if p.Points, err = dec.ReadUint32(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("account %s: points: %w", address, err)
	}
	if p.AllocatedBalance, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("account %s: allocated balance: %w", address, err)
	}
	if p.Bump, err = dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("account %s: bump: %w", address, err)
	}

	return p, nil
}
