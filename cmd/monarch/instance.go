package main

import (
	"fmt"
	"os"

	"monarch/cmd/monarch/ui"
	"monarch/instance"
	"monarch/internal/channel"
	"monarch/platform"
)

// coordinator registers this launch for the configured identity.
func (g *globals) coordinator() (*instance.Coordinator, error) {
	dir := g.dir()
	return instance.New(g.identity(), platform.Local{Dir: dir, Log: g.log},
		instance.WithTransport(channel.Unix{Dir: dir}),
		instance.WithLogger(g.log),
		instance.WithRetry(g.cfg.Send.Attempts, g.cfg.Send.ConnectTimeout, g.cfg.Send.RetryDelay),
		instance.WithRedirectTimeout(g.cfg.Send.RedirectTimeout),
		instance.WithActivated(func() {
			fmt.Fprintln(os.Stderr, ui.InfoMsg("Activated by another launch."))
		}),
	)
}
