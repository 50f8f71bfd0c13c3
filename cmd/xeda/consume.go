package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/xeda"
)

func newConsumeCmd(a *app) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "consume [topic...]",
		Short: "Print envelopes as JSON lines until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := args
			if len(topics) == 0 {
				topics = xeda.EventTypes
			}

			bus, err := a.openBus()
			if err != nil {
				return err
			}
			defer bus.Close(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			printEnvelope := func(ctx context.Context, msg *xeda.Message) error {
				env, err := xeda.DecodeEnvelope(ctx, msg)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				return enc.Encode(env)
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, topic := range topics {
				g.Go(func() error {
					sub, err := bus.Subscribe(gctx, topic, group, printEnvelope)
					if err != nil {
						return err
					}
					a.logger.Info().Str("topic", topic).Str("group", group).Msg("xeda: consuming")
					<-gctx.Done()
					return sub.Close()
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&group, "group", "xeda-cli", "consumer group")
	return cmd
}
