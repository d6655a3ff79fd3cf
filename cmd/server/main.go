// tgfiles gateway
//
// Exposes an allow-listed part of the host filesystem to a companion web
// client. Clients authenticate by trading a single-use pairing code, minted by
// the operator, for a session credential.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/audichuang/openclaw-telegram-files/internal/config"
)

func main() {
	ctx := withSignalCancel(context.Background())
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "tgfiles",
		Short:         "tgfiles serves allow-listed host files to paired web clients",
		SilenceErrors: true,
		Example: `
  # Expose two directories, trusting the hosted client as CORS origin
  FILES_OPERATOR_SECRET=$(openssl rand -hex 32) tgfiles \
    --allowed-paths ~/Documents,/srv/share \
    --external-url https://files.example.com

  # Record an audit trail in PostgreSQL
  tgfiles --database-url postgres://tgfiles@localhost/tgfiles?sslmode=disable
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), v)
		},
	}

	if err := config.RegisterFlags(v, cmd.PersistentFlags()); err != nil {
		panic(err)
	}

	cmd.AddCommand(newServeCommand(v))
	cmd.AddCommand(newOperatorTokenCommand(v))
	cmd.AddCommand(newHashPasswordCommand())
	return cmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), v)
		},
	}
}

// loadConfig reads the optional config file and resolves the final
// configuration.
func loadConfig(v *viper.Viper) (*config.Config, string, error) {
	configFile, err := config.ReadFile(v)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, "", fmt.Errorf("configuration error: %w", err)
	}
	return cfg, configFile, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
