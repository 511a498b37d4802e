// Command gsanity-demo runs simulated tasks under a sanity supervisor,
// optionally making one of them hang to show the fatal action firing.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gordian-engine/gsanity/cmd/gsanity-demo/internal/gsdemo"
	"github.com/spf13/cobra"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := NewRootCmd(logger)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

func NewRootCmd(log *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "gsanity-demo SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `gsanity-demo runs a set of simulated tasks that check in with a sanity supervisor.

Run healthy tasks until interrupted:
    $ gsanity-demo run

Make task-0 hang after two seconds, and watch the supervisor fire:
    $ gsanity-demo run --hang-after 2s

Serve the current record status and Prometheus metrics while running:
    $ gsanity-demo run --http-addr 127.0.0.1:9090
`,

		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		NewRunCmd(log),
	)

	return rootCmd
}

func NewRunCmd(log *slog.Logger) *cobra.Command {
	cfg := gsdemo.DefaultConfig()

	cmd := &cobra.Command{
		Use: "run",

		Short: "Run simulated tasks under a supervisor until interrupted or a task hangs",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return gsdemo.Run(cmd.Context(), log, cfg)
		},
	}

	cfg.BindFlags(cmd.Flags())

	return cmd
}
