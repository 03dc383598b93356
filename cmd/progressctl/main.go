// Command progressctl signs progress ledger instructions and submits them to the ledger API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Proton-105/lesson-ledger/internal/pda"
)

var (
	apiURL      string
	programID   string
	seed        string
	keypairPath string
)

var rootCmd = &cobra.Command{
	Use:   "progressctl",
	Short: "Client for the lesson progress ledger",
	Long: `progressctl derives progress account addresses, signs initialize_user and
complete_lesson instructions with a solana-keygen keypair and posts them to the ledger API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("LEDGER_API", "http://localhost:8080"), "ledger API base URL")
	rootCmd.PersistentFlags().StringVar(&programID, "program", envOr("LEDGER_PROGRAM_ID", "GHTszogQs3yHDPU4L5wQDRgcnddQh2nkizuuXAoFTpqG"), "program id")
	rootCmd.PersistentFlags().StringVar(&seed, "seed", pda.DefaultSeed, "account seed")
	rootCmd.PersistentFlags().StringVarP(&keypairPath, "keypair", "k", envOr("LEDGER_KEYPAIR", "id.json"), "solana-keygen keypair file")

	rootCmd.AddCommand(keygenCmd, addressCmd, initCmd, completeCmd, showCmd, leaderboardCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
