package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xeda/scheduler"
)

func newScheduleCmd(a *app) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Publish nodes whose publication time has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			bus, err := a.openBus()
			if err != nil {
				return err
			}
			defer bus.Close(context.Background())
			d, err := a.dispatcher(bus)
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}

			s, err := scheduler.New(st, &reportingDispatcher{next: d, out: cmd.OutOrStdout()}, scheduler.Config{
				Spec:               a.cfg.Scheduler.Spec,
				IntegrationEnabled: a.cfg.Integration.Enabled,
				Location:           loc,
			}, scheduler.WithLogger(a.logger))
			if err != nil {
				return err
			}

			if once {
				_, err := s.RunOnce(ctx)
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return s.Stop(sctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}
