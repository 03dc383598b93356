package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/lesson-ledger/internal/api"
	"github.com/Proton-105/lesson-ledger/internal/auth"
	"github.com/Proton-105/lesson-ledger/internal/pda"
	"github.com/Proton-105/lesson-ledger/internal/progress"
)

const testProgram = "GHTszogQs3yHDPU4L5wQDRgcnddQh2nkizuuXAoFTpqG"

func testCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func startLedger(t *testing.T) *httptest.Server {
	t.Helper()

	program := solana.MustPublicKeyFromBase58(testProgram)
	deriver, err := pda.NewDeriver(program)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := progress.NewLedger(deriver, progress.NewMemoryStorage(), auth.NewEd25519Authenticator(program), log)

	srv := httptest.NewServer(api.NewServer(api.Deps{Ledger: ledger, Log: log}).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestKeygen_WritesLoadableKeypair(t *testing.T) {
	keygenOut = filepath.Join(t.TempDir(), "id.json")
	keygenForce = false

	var out bytes.Buffer
	require.NoError(t, runKeygen(testCommand(&out), nil))

	key, err := solana.PrivateKeyFromSolanaKeygenFile(keygenOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), key.PublicKey().String())

	assert.Error(t, runKeygen(testCommand(io.Discard), nil))
}

func TestInitCompleteShow_AgainstAPI(t *testing.T) {
	srv := startLedger(t)

	apiURL = srv.URL
	programID = testProgram
	seed = "user-progress"
	keypairPath = filepath.Join(t.TempDir(), "id.json")

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	require.NoError(t, writeKeypair(keypairPath, key))

	require.NoError(t, runInit(testCommand(io.Discard), nil))

	lessonID, pointsAwarded, rewardAmount = "L1", 10, 500
	require.NoError(t, runComplete(testCommand(io.Discard), nil))

	var out bytes.Buffer
	require.NoError(t, runShow(testCommand(&out), nil))

	var record progress.UserProgress
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	assert.Equal(t, key.PublicKey(), record.Owner)
	assert.Equal(t, []string{"L1"}, record.CompletedLessons)
	assert.Equal(t, uint32(10), record.Points)
	assert.Equal(t, uint64(500), record.AllocatedBalance)

	err = runInit(testCommand(io.Discard), nil)
	assert.ErrorContains(t, err, "409")
}

func TestAddress_MatchesDeriver(t *testing.T) {
	programID = testProgram
	seed = "user-progress"
	user := solana.NewWallet().PublicKey()

	var out bytes.Buffer
	require.NoError(t, runAddress(testCommand(&out), []string{user.String()}))

	deriver, err := pda.NewDeriver(solana.MustPublicKeyFromBase58(testProgram))
	require.NoError(t, err)
	derived, err := deriver.Derive(user)
	require.NoError(t, err)
	assert.Contains(t, out.String(), derived.Address.String())

	assert.Error(t, runAddress(testCommand(io.Discard), []string{"nope"}))
}
