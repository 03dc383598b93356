package instruction

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

// maxMessageAccounts bounds the account list of a single message.
const maxMessageAccounts = 8

// Message is the signed payload of a submission.
type Message struct {
	ProgramID       solana.PublicKey
	Accounts        []solana.PublicKey
	RecentBlockhash solana.Hash
	Data            []byte
}

// NewMessage wraps ix into a message addressed to programID.
func NewMessage(programID solana.PublicKey, ix Instruction, recentBlockhash solana.Hash) (Message, error) {
	data, err := ix.Data()
	if err != nil {
		return Message{}, err
	}

	return Message{
		ProgramID:       programID,
		Accounts:        ix.Accounts(),
		RecentBlockhash: recentBlockhash,
		Data:            data,
	}, nil
}

// MarshalBinary encodes the message as program id, u8 account count, accounts, blockhash and u32-prefixed data.
func (m Message) MarshalBinary() ([]byte, error) {
	if len(m.Accounts) > maxMessageAccounts {
		return nil, apperrors.NewInvalidArgumentError("message has %d accounts, max %d", len(m.Accounts), maxMessageAccounts)
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := WritePublicKey(enc, m.ProgramID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(uint8(len(m.Accounts))); err != nil {
		return nil, err
	}
	for _, account := range m.Accounts {
		if err := WritePublicKey(enc, account); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteBytes(m.RecentBlockhash[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(m.Data)), binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(m.Data, false); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseMessage decodes bytes produced by Message.MarshalBinary.
func ParseMessage(raw []byte) (Message, error) {
	dec := bin.NewBorshDecoder(raw)

	programID, err := ReadPublicKey(dec)
	if err != nil {
		return Message{}, apperrors.NewInvalidArgumentError("decode program id: %v", err)
	}

	count, err := dec.ReadUint8()
	if err != nil {
		return Message{}, apperrors.NewInvalidArgumentError("decode account count: %v", err)
	}
	if int(count) > maxMessageAccounts {
		return Message{}, apperrors.NewInvalidArgumentError("message has %d accounts, max %d", count, maxMessageAccounts)
	}

	accounts := make([]solana.PublicKey, 0, count)
	for i := 0; i < int(count); i++ {
		account, err := ReadPublicKey(dec)
		if err != nil {
			return Message{}, apperrors.NewInvalidArgumentError("decode account %d: %v", i, err)
		}
		accounts = append(accounts, account)
	}

	blockhash, err := dec.ReadNBytes(len(solana.Hash{}))
	if err != nil {
		return Message{}, apperrors.NewInvalidArgumentError("decode blockhash: %v", err)
	}

	size, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return Message{}, apperrors.NewInvalidArgumentError("decode data length: %v", err)
	}
	if int(size) != dec.Remaining() {
		return Message{}, apperrors.NewInvalidArgumentError("data length %d does not match remaining %d bytes", size, dec.Remaining())
	}
	data, err := dec.ReadNBytes(int(size))
	if err != nil {
		return Message{}, apperrors.NewInvalidArgumentError("decode data: %v", err)
	}

	m := Message{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      append([]byte(nil), data...),
	}
	copy(m.RecentBlockhash[:], blockhash)
	return m, nil
}

// Instruction decodes the message's instruction, rejecting messages for other programs.
func (m Message) Instruction(programID solana.PublicKey) (Instruction, error) {
	if !m.ProgramID.Equals(programID) {
		return Instruction{}, apperrors.NewInvalidArgumentError("message targets program %s, expected %s", m.ProgramID, programID)
	}
	return Decode(m.Accounts, m.Data)
}

// Submission is a message plus the signer's Ed25519 signature over its bytes.
type Submission struct {
	Signer    solana.PublicKey
	Signature solana.Signature
	Message   []byte
}

// Sign encodes m and signs it with key.
func Sign(m Message, key solana.PrivateKey) (Submission, error) {
	raw, err := m.MarshalBinary()
	if err != nil {
		return Submission{}, err
	}

	sig, err := key.Sign(raw)
	if err != nil {
		return Submission{}, fmt.Errorf("sign message: %w", err)
	}

	return Submission{Signer: key.PublicKey(), Signature: sig, Message: raw}, nil
}

// Verify checks that Signature is the signer's Ed25519 signature over Message.
func (s Submission) Verify() error {
	if s.Signer.IsZero() {
		return apperrors.NewUnauthorizedError("submission has no signer")
	}
	if !s.Signature.Verify(s.Signer, s.Message) {
		return apperrors.NewUnauthorizedError("signature does not verify for %s", s.Signer)
	}
	return nil
}

// ID returns the base58 signature, which identifies the submission.
func (s Submission) ID() string {
	return s.Signature.String()
}

type submissionJSON struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

// MarshalJSON encodes keys and signatures as base58 and the message as base64.
func (s Submission) MarshalJSON() ([]byte, error) {
	return json.Marshal(submissionJSON{
		Signer:    s.Signer.String(),
		Signature: s.Signature.String(),
		Message:   base64.StdEncoding.EncodeToString(s.Message),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Submission) UnmarshalJSON(data []byte) error {
	var wire submissionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	signer, err := solana.PublicKeyFromBase58(wire.Signer)
	if err != nil {
		return apperrors.NewInvalidArgumentError("invalid signer: %v", err)
	}
	sig, err := solana.SignatureFromBase58(wire.Signature)
	if err != nil {
		return apperrors.NewInvalidArgumentError("invalid signature: %v", err)
	}
	msg, err := base64.StdEncoding.DecodeString(wire.Message)
	if err != nil {
		return apperrors.NewInvalidArgumentError("invalid message encoding: %v", err)
	}

	*s = Submission{Signer: signer, Signature: sig, Message: msg}
	return nil
}
