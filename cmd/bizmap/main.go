// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command bizmap is the BizMap Rwanda client core.
//
// # Commands
//
//   - serve        : Run the local shell the UI talks to.
//   - status       : Print the persisted session.
//   - login        : Sign in from the terminal.
//   - logout       : Sign out and clear the stored session.
//   - verify-email : Redeem an email verification token.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/taibuivan/bizmap/internal/platform/config"
)

var (
	// Loaded by the root PersistentPreRunE before any subcommand runs
	cfg *config.Config
	log *slog.Logger

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bizmap",
	Short: "BizMap Rwanda client core",
	Long: `BizMap keeps the signed-in session, guards the UI routes and drives the
trilingual (Kinyarwanda, English, French) voice assistant.

Configuration comes from the environment; a .env file in the working
directory is read first when present.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		log = newLogger(cfg.Debug || verbose)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(verifyEmailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the structured JSON logger every component receives.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With(slog.String("app", "bizmap"))
}
