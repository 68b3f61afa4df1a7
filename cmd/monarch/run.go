package main

import (
	"os"
	"os/signal"
	"syscall"

	"monarch/host"
	"monarch/instance"
	"monarch/internal/channel"
	"monarch/internal/eventbus"
	"monarch/internal/health"
	"monarch/internal/journal"
	"monarch/lifetime"

	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run [args...]",
		Short: "Run the application, or hand the arguments to the running instance",
		Long: `Run the demo application as the primary instance.

If another instance with the same identity is already running, the arguments
are forwarded to it and this launch exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			coord, err := g.coordinator()
			if err != nil {
				return err
			}
			defer coord.Close()

			id, dir := g.identity(), g.dir()
			lt := lifetime.New(g.log)
			bus := eventbus.New(g.log)

			services := []host.Service{
				journal.NewService(g.journalPath(), bus, g.log),
				instance.NewReceiver(id, bus,
					instance.WithReceiverTransport(channel.Unix{Dir: dir}),
					instance.WithReceiverLogger(g.log),
					instance.WithReadTimeout(g.cfg.Receive.ReadTimeout),
					instance.WithStopping(lt.Stopping()),
				),
			}
			if g.cfg.Health {
				services = append(services, health.NewService(health.SocketPath(dir, id), id, lt, g.log))
			}

			app := newDemoApp(id, bus, args, cmd.OutOrStdout())
			h := host.New(
				host.WithLogger(g.log),
				host.WithLifetime(lt),
				host.WithBus(bus),
				host.WithCoordinator(coord),
				host.WithArgs(args),
				host.WithNotifier(host.SystemdNotifier{}),
				host.WithService(services...),
			)
			return h.Run(ctx, app)
		},
	}
}
