package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/seifmios/internal/remote"
)

func ctlCmd() *cobra.Command {
	var (
		address string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ctl <command> [args...]",
		Short: "Send a command to a running seifmios",
		Long: `Send one console command to a running seifmios over its remote socket
and print the output.

Examples:
  seifmios ctl stats
  seifmios ctl tell "the cat sat on the mat"
  seifmios ctl import lines ~/corpus.txt
  seifmios ctl connect irc ~/.seifmios/irc.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				address = cfg.Remote.Address
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client, err := remote.Dial(ctx, address)
			if err != nil {
				return fmt.Errorf("is seifmios serve running? %w", err)
			}
			defer client.Close()

			// The shell already grouped the words, so each argument is one token.
			return client.Do(ctx, args, func(line string) {
				fmt.Println(line)
			})
		},
	}
	// Everything after the command name belongs to the command, dashes included.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&address, "address", "", "remote socket (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits forever)")
	return cmd
}
