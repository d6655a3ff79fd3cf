package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/audichuang/openclaw-telegram-files/internal/operator"
)

// newOperatorTokenCommand mints an operator token offline, for the chat
// command layer to call the pairing endpoint with.
func newOperatorTokenCommand(v *viper.Viper) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "operator-token",
		Short: "Print a signed operator token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, _, err := loadConfig(v)
			if err != nil {
				return err
			}
			auth, err := operator.New(operator.Config{
				Secret:   cfg.OperatorSecret,
				TokenTTL: ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", operator.DefaultTokenTTL, "token lifetime")
	return cmd
}

// newHashPasswordCommand reads a password from stdin and prints its bcrypt
// hash for the operator-password-hash setting.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash an operator password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			sc := bufio.NewScanner(cmd.InOrStdin())
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return err
				}
				return errors.New("no password on stdin")
			}
			password := strings.TrimRight(sc.Text(), "\r")
			if password == "" {
				return errors.New("empty password")
			}
			hash, err := operator.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
