package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xeda"
	"github.com/trickstertwo/xeda/moderation"
)

// routeFlagAction is the route of the flag link a member clicks.
const routeFlagAction = "flag.action_link_flag"

func newFlagCmd(a *app) *cobra.Command {
	var entityType, userFile string
	cmd := &cobra.Command{
		Use:   "flag <flag-id> <entity-id>",
		Short: "Flag content, unpublishing reported nodes when configured",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := a.identity(userFile)
			if err != nil {
				return err
			}
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
			opts, err := a.handlerOptions()
			if err != nil {
				return err
			}

			h := xeda.NewEventHandler(&reportingDispatcher{next: d, out: cmd.OutOrStdout()}, a.cfg.Integration.Enabled,
				xeda.RequestContext{RouteName: routeFlagAction, Path: "/flag/flag/" + args[0] + "/" + args[1], Identity: user}, opts...)
			msgs := &moderation.Messages{}
			sub := moderation.NewSubscriber(st, msgs,
				moderation.WithUnpublishImmediately(a.cfg.Moderation.UnpublishImmediately),
				moderation.WithLifecycle(h),
				moderation.WithLogger(a.logger),
			)

			err = sub.OnFlag(ctx, moderation.Flagging{FlagID: args[0], EntityType: entityType, EntityID: args[1]})
			for _, m := range msgs.All() {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", moderation.EntityTypeNode, "type of the flagged entity")
	cmd.Flags().StringVar(&userFile, "user", "", "JSON file with the reporting account")
	return cmd
}
