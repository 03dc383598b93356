package instruction

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DiscriminatorSize is the length of an Anchor instruction or account discriminator.
const DiscriminatorSize = 8

// Discriminator is the 8-byte Anchor type tag.
type Discriminator [DiscriminatorSize]byte

// AnchorDiscriminator returns sha256("<namespace>:<name>")[:8].
func AnchorDiscriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))

	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// WriteString encodes s as a Borsh string: u32 LE byte length followed by UTF-8 bytes.
func WriteString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

// ReadString decodes a Borsh string.
func ReadString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(n) > dec.Remaining() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, dec.Remaining())
	}

	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WritePublicKey encodes a 32-byte public key.
func WritePublicKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key[:], false)
}

// ReadPublicKey decodes a 32-byte public key.
func ReadPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}
