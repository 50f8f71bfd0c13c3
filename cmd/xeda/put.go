package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xeda"
)

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put <node.json>...",
		Short: "Store nodes for the scheduler and moderation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, path := range args {
				var n xeda.Node
				if err := readJSON(path, &n); err != nil {
					return err
				}
				if err := st.SaveNode(ctx, &n); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", n.UUID)
			}
			return nil
		},
	}
}
