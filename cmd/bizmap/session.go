// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/taibuivan/bizmap/internal/account"
)

var (
	loginEmail    string
	loginPhone    string
	loginPassword string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored session",
	Long: `Restore the stored session the same way the shell does at startup and
print it as JSON. An expired access token is refreshed when possible.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email or phone and password",
	Long: `Sign in and store the session for the shell.

Exactly one of --email or --phone is used; email wins when both are given.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email <token>",
	Short: "Redeem an email verification token",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyEmail,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "account phone number")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	_ = loginCmd.MarkFlagRequired("password")
	loginCmd.MarkFlagsOneRequired("email", "phone")
}

// withSession opens the runtime, restores the session and hands it to fn.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.manager.Init(ctx)

	out, err := fn(ctx, rt)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("print result: %w", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(_ context.Context, rt *runtime) (any, error) {
		return rt.manager.Snapshot(), nil
	})
}

func runLogin(cmd *cobra.Command, args []string) error {
	credentials := account.Credentials{Password: loginPassword}
	if loginEmail != "" {
		credentials.Email = loginEmail
	} else {
		credentials.PhoneNumber = loginPhone
	}

	return withSession(cmd, func(ctx context.Context, rt *runtime) (any, error) {
		return rt.manager.Login(ctx, credentials, "")
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, rt *runtime) (any, error) {
		if err := rt.manager.Logout(ctx); err != nil {
			return nil, err
		}
		return rt.manager.Snapshot(), nil
	})
}

func runVerifyEmail(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, rt *runtime) (any, error) {
		return rt.manager.VerifyEmail(ctx, args[0])
	})
}
