package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xeda"
)

func newEmitCmd(a *app) *cobra.Command {
	var route, path, userFile string
	cmd := &cobra.Command{
		Use:   "emit <create|update|publish|unpublish|delete> <node.json>",
		Short: "Fire a lifecycle operation for a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var node xeda.Node
			if err := readJSON(args[1], &node); err != nil {
				return err
			}
			user, err := a.identity(userFile)
			if err != nil {
				return err
			}

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
				xeda.RequestContext{RouteName: route, Path: path, Identity: user}, opts...)
			return h.Handle(cmd.Context(), xeda.Operation(args[0]), &node)
		},
	}
	cmd.Flags().StringVar(&route, "route", xeda.RouteNodeEditForm, "route name of the triggering request")
	cmd.Flags().StringVar(&path, "path", "", "request path, used as the envelope source")
	cmd.Flags().StringVar(&userFile, "user", "", "JSON file with the acting account")
	return cmd
}
