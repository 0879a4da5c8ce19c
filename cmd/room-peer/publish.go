package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ravinder2001/live-mic-steamer/internal/peer"
)

func newPublishCmd(opts *options) *cobra.Command {
	var (
		message  string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Open a data channel and post the room's offer",
		Long: `Publish creates the data channel and posts an offer to the room. The relay
caches it, so subscribers may join before or after the publisher starts.

Once the channel opens, --message is sent, then repeated every --interval
when set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := opts.logger()
			if err != nil {
				return err
			}
			cfg, err := opts.peerConfig(ctx, peer.RolePublisher, logger)
			if err != nil {
				return err
			}

			c, err := peer.Dial(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			go func() {
				select {
				case <-c.Opened():
				case <-ctx.Done():
					return
				}
				publish(ctx, c, message, interval)
			}()

			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "hello", "message sent once the data channel opens")
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat the message at this interval (0 sends once)")
	return cmd
}

func publish(ctx context.Context, c *peer.Client, message string, interval time.Duration) {
	if err := c.Send([]byte(message)); err != nil {
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Send([]byte(message)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
