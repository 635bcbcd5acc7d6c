package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/techtree/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "interview",
		Short:         "TechTree interview practice in the terminal",
		Long:          "Practice technical interviews against the TechTree curriculum: chat with the interviewer, browse tracks or pre-generate questions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newTracksCmd())
	cmd.AddCommand(newGenerateCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "interview %s (commit: %s)\n", Version, Commit)
		},
	}
}

// loadConfig reads .env and the environment. Commands only override what
// their flags set.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

// cliLogger keeps diagnostics on stderr, below warnings unless verbose.
func cliLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
