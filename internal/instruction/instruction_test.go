package instruction

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/lesson-ledger/internal/errors"
)

var testProgramID = solana.MustPublicKeyFromBase58("GHTszogQs3yHDPU4L5wQDRgcnddQh2nkizuuXAoFTpqG")

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestDiscriminators_MatchProgramInterface(t *testing.T) {
	assert.Equal(t, Discriminator{111, 17, 185, 250, 60, 122, 38, 254}, InitializeUserDiscriminator)
	assert.Equal(t, Discriminator{77, 217, 53, 132, 204, 150, 169, 58}, CompleteLessonDiscriminator)
	assert.Equal(t, Discriminator{195, 16, 25, 215, 192, 49, 107, 204}, AnchorDiscriminator("account", "UserProgress"))
}

func TestCompleteLesson_DataLayout(t *testing.T) {
	ix := NewCompleteLesson(solana.PublicKey{1}, solana.PublicKey{2}, CompleteLessonArgs{
		LessonID:      "L1",
		PointsAwarded: 10,
		RewardAmount:  500,
	})

	data, err := ix.Data()
	require.NoError(t, err)

	want := append([]byte{}, CompleteLessonDiscriminator[:]...)
	want = append(want, 2, 0, 0, 0, 'L', '1')
	want = append(want, 10, 0, 0, 0)
	want = append(want, 0xf4, 0x01, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, want, data)
}

func TestDecode_RoundTripsInstructions(t *testing.T) {
	progress, user := newKey(t).PublicKey(), newKey(t).PublicKey()

	cases := []Instruction{
		NewInitializeUser(progress, user),
		NewCompleteLesson(progress, user, CompleteLessonArgs{LessonID: "intro-to-pdas", PointsAwarded: 25, RewardAmount: 1_000_000}),
	}

	for _, ix := range cases {
		t.Run(string(ix.Kind), func(t *testing.T) {
			data, err := ix.Data()
			require.NoError(t, err)

			got, err := Decode(ix.Accounts(), data)
			require.NoError(t, err)
			if diff := cmp.Diff(ix, got); diff != "" {
				t.Fatalf("decoded instruction mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_RejectsMalformedData(t *testing.T) {
	accounts := []solana.PublicKey{{1}, {2}}

	_, err := Decode(accounts, []byte{1, 2, 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = Decode(accounts, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = Decode(accounts[:1], InitializeUserDiscriminator[:])
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	trailing := append(append([]byte{}, InitializeUserDiscriminator[:]...), 0xff)
	_, err = Decode(accounts, trailing)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	truncated := append(append([]byte{}, CompleteLessonDiscriminator[:]...), 200, 0, 0, 0, 'x')
	_, err = Decode(accounts, truncated)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestMessage_SignAndParse(t *testing.T) {
	key := newKey(t)
	ix := NewCompleteLesson(solana.PublicKey{9}, key.PublicKey(), CompleteLessonArgs{LessonID: "L1", PointsAwarded: 5})

	msg, err := NewMessage(testProgramID, ix, solana.Hash{7})
	require.NoError(t, err)

	sub, err := Sign(msg, key)
	require.NoError(t, err)
	assert.True(t, sub.Signature.Verify(key.PublicKey(), sub.Message))
	assert.Equal(t, key.PublicKey(), sub.Signer)

	parsed, err := ParseMessage(sub.Message)
	require.NoError(t, err)
	if diff := cmp.Diff(msg, parsed); diff != "" {
		t.Fatalf("parsed message mismatch (-want +got):\n%s", diff)
	}

	got, err := parsed.Instruction(testProgramID)
	require.NoError(t, err)
	assert.Equal(t, ix, got)

	_, err = parsed.Instruction(solana.PublicKey{1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSubmission_JSONWireForm(t *testing.T) {
	key := newKey(t)
	msg, err := NewMessage(testProgramID, NewInitializeUser(solana.PublicKey{3}, key.PublicKey()), solana.Hash{})
	require.NoError(t, err)

	sub, err := Sign(msg, key)
	require.NoError(t, err)

	raw, err := json.Marshal(sub)
	require.NoError(t, err)

	var wire map[string]string
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, key.PublicKey().String(), wire["signer"])
	assert.Equal(t, sub.ID(), wire["signature"])

	var decoded Submission
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, sub, decoded)

	err = json.Unmarshal([]byte(`{"signer":"not-base58!","signature":"","message":""}`), &decoded)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSubmission_Verify(t *testing.T) {
	key := newKey(t)
	msg, err := NewMessage(testProgramID, NewInitializeUser(solana.PublicKey{3}, key.PublicKey()), solana.Hash{})
	require.NoError(t, err)

	sub, err := Sign(msg, key)
	require.NoError(t, err)
	require.NoError(t, sub.Verify())

	other := sub
	other.Signer = newKey(t).PublicKey()
	assert.ErrorIs(t, other.Verify(), apperrors.ErrUnauthorized)

	tampered := sub
	tampered.Message = append([]byte(nil), sub.Message...)
	tampered.Message[0] ^= 0xff
	assert.ErrorIs(t, tampered.Verify(), apperrors.ErrUnauthorized)

	assert.ErrorIs(t, Submission{Message: sub.Message}.Verify(), apperrors.ErrUnauthorized)
}
