package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ravinder2001/live-mic-steamer/internal/peer"
)

func newSubscribeCmd(opts *options) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Join a room and answer its offer",
		Long: `Subscribe joins the room, answers the cached or next offer and prints every
data channel message to stdout, one per line.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := opts.logger()
			if err != nil {
				return err
			}
			cfg, err := opts.peerConfig(ctx, peer.RoleSubscriber, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			cfg.OnMessage = func(data []byte) {
				fmt.Fprintln(out, string(data))
				if once {
					stop()
				}
			}

			c, err := peer.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "exit after the first message")
	return cmd
}
