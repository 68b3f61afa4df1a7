package main

import (
	"errors"
	"fmt"

	"monarch/cmd/monarch/ui"

	"github.com/spf13/cobra"
)

var errNotRunning = errors.New("no running instance")

func sendCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "send [args...]",
		Short: "Forward arguments to the running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := g.coordinator()
			if err != nil {
				return err
			}
			defer coord.Close()

			if coord.IsCurrent() {
				return fmt.Errorf("%w for %s", errNotRunning, g.identity())
			}
			if err := coord.SendAndRedirect(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.SuccessMsg("Forwarded %d argument(s) to %s.", len(args), ui.Accent(g.identity().String())))
			return nil
		},
	}
}
