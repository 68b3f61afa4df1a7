package main

import (
	"context"
	"fmt"
	"time"

	"monarch/cmd/monarch/ui"
	"monarch/internal/channel"
	"monarch/internal/health"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const statusTimeout = 3 * time.Second

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether an instance is running and healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, dir := g.identity(), g.dir()
			path := health.SocketPath(dir, id)

			status := healthpb.HealthCheckResponse_UNKNOWN
			err := ui.RunWithSpinner(cmd.Context(), "Checking", func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, statusTimeout)
				defer cancel()
				var err error
				status, err = health.Check(ctx, path)
				return err
			})

			state := status.String()
			if err != nil {
				g.log.Debug("Health check failed.", "path", path, "err", err)
				state = "unreachable"
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.KeyValues("  ",
				ui.KV("Identity", id.String()),
				ui.KV("Channel", channel.Unix{Dir: dir}.Path(id)),
				ui.KV("Health", ui.Phase(state)),
			))
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), ui.WarnMsg("No running instance answered on %s.", path))
			}
			return nil
		},
	}
}
