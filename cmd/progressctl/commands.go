package main

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/Proton-105/lesson-ledger/internal/instruction"
	"github.com/Proton-105/lesson-ledger/internal/pda"
)

var (
	keygenOut   string
	keygenForce bool

	lessonID      string
	pointsAwarded uint32
	rewardAmount  uint64

	leaderboardLimit int
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new keypair file",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

var addressCmd = &cobra.Command{
	Use:   "address [user]",
	Short: "Derive the progress account of a user",
	Long: `Derive the progress account address and bump of a user offline.
Without an argument the keypair's public key is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAddress,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the progress account of the keypair's user",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Record a completed lesson",
	Args:  cobra.NoArgs,
	RunE:  runComplete,
}

var showCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Print the progress record of a user",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the top accounts by points",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "id.json", "output file")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing file")

	completeCmd.Flags().StringVar(&lessonID, "lesson", "", "lesson id")
	completeCmd.Flags().Uint32Var(&pointsAwarded, "points", 0, "points awarded")
	completeCmd.Flags().Uint64Var(&rewardAmount, "reward", 0, "reward amount")
	_ = completeCmd.MarkFlagRequired("lesson")

	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", 10, "number of entries")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(keygenOut); err == nil && !keygenForce {
		return fmt.Errorf("%s already exists, use --force to overwrite", keygenOut)
	}

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return err
	}
	if err := writeKeypair(keygenOut, key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\nwritten to %s\n", key.PublicKey(), keygenOut)
	return nil
}

// writeKeypair stores key in the solana-keygen JSON array format.
func writeKeypair(path string, key solana.PrivateKey) error {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}

	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func runAddress(cmd *cobra.Command, args []string) error {
	user, err := userArg(args)
	if err != nil {
		return err
	}

	deriver, err := newDeriver()
	if err != nil {
		return err
	}
	derived, err := deriver.Derive(user)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "user:    %s\naddress: %s\nbump:    %d\n", user, derived.Address, derived.Bump)
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	return submit(cmd, func(user, account solana.PublicKey) instruction.Instruction {
		return instruction.NewInitializeUser(account, user)
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	if lessonID == "" {
		return errors.New("--lesson must not be empty")
	}

	return submit(cmd, func(user, account solana.PublicKey) instruction.Instruction {
		return instruction.NewCompleteLesson(account, user, instruction.CompleteLessonArgs{
			LessonID:      lessonID,
			PointsAwarded: pointsAwarded,
			RewardAmount:  rewardAmount,
		})
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	user, err := userArg(args)
	if err != nil {
		return err
	}

	return newClient(apiURL).get(cmd.Context(), "/v1/users/"+user.String()+"/progress", cmd.OutOrStdout())
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	return newClient(apiURL).get(cmd.Context(), fmt.Sprintf("/v1/leaderboard?limit=%d", leaderboardLimit), cmd.OutOrStdout())
}

func submit(cmd *cobra.Command, build func(user, account solana.PublicKey) instruction.Instruction) error {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return fmt.Errorf("load keypair %s: %w", keypairPath, err)
	}

	deriver, err := newDeriver()
	if err != nil {
		return err
	}
	derived, err := deriver.Derive(key.PublicKey())
	if err != nil {
		return err
	}

	sub, err := signInstruction(deriver.ProgramID(), key, build(key.PublicKey(), derived.Address))
	if err != nil {
		return err
	}

	return newClient(apiURL).submit(cmd.Context(), sub, cmd.OutOrStdout())
}

// signInstruction signs ix under a random nonce so repeated commands produce distinct submissions.
func signInstruction(program solana.PublicKey, key solana.PrivateKey, ix instruction.Instruction) (instruction.Submission, error) {
	var nonce solana.Hash
	if _, err := rand.Read(nonce[:]); err != nil {
		return instruction.Submission{}, err
	}

	msg, err := instruction.NewMessage(program, ix, nonce)
	if err != nil {
		return instruction.Submission{}, err
	}
	return instruction.Sign(msg, key)
}

func newDeriver() (*pda.Deriver, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid --program: %w", err)
	}
	return pda.NewDeriver(program, pda.WithSeed(seed))
}

func userArg(args []string) (solana.PublicKey, error) {
	if len(args) == 1 {
		user, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("invalid user %q: %w", args[0], err)
		}
		return user, nil
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("load keypair %s: %w", keypairPath, err)
	}
	return key.PublicKey(), nil
}
