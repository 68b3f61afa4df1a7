package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"monarch"
	"monarch/cmd/monarch/ui"
	"monarch/internal/eventbus"
)

// demoApp stands in for a UI: it prints every activation until the host
// stops. It subscribes on construction so activations that arrive while the
// host is still starting are not lost.
type demoApp struct {
	id          monarch.Identity
	args        []string
	out         io.Writer
	events      chan *monarch.Envelope
	unsubscribe func()
}

func newDemoApp(id monarch.Identity, bus *eventbus.Bus, args []string, out io.Writer) *demoApp {
	a := &demoApp{id: id, args: args, out: out, events: make(chan *monarch.Envelope, 16)}
	a.unsubscribe = eventbus.Subscribe(bus, func(env *monarch.Envelope) {
		select {
		case a.events <- env:
		default:
		}
	})
	return a
}

func (a *demoApp) Run(ctx context.Context) error {
	defer a.unsubscribe()

	fmt.Fprintln(a.out, ui.SuccessMsg("%s running. Launch it again to forward arguments; Ctrl+C to quit.", ui.Accent(a.id.String())))
	if len(a.args) > 0 {
		fmt.Fprintln(a.out, ui.InfoMsg("Started with %s", formatArgs(a.args)))
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out, ui.Muted("Shutting down."))
			return nil
		case env := <-a.events:
			fmt.Fprintln(a.out, ui.InfoMsg("Activation at %s: %s",
				env.Timestamp().Local().Format("15:04:05"), formatArgs(env.Args())))
		}
	}
}

func formatArgs(args []string) string {
	if len(args) == 0 {
		return ui.Muted("(no arguments)")
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return strings.Join(quoted, " ")
}
