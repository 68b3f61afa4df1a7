package host

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Run is the application entry point.
//
// A secondary instance forwards its arguments to the primary and returns
// the send result. The primary starts the services and runs app on a
// goroutine locked to its OS thread. Cancelling ctx requests shutdown: the
// app's context is cancelled, and once app returns the host is stopped.
// Run returns app's error, a start failure, or ErrAppPanic.
func (h *Host) Run(ctx context.Context, app App) error {
	if h.coordinator != nil && !h.coordinator.IsCurrent() {
		h.log.Info("Forwarding activation to the running instance.")
		return h.coordinator.SendAndRedirect(ctx, h.args)
	}
	if app == nil {
		return ErrNoApp
	}

	uiDone := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(uiDone)
		return h.runUI(ctx, app)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			h.log.Info("Shutdown requested.")
			h.lifetime.StopApplication()
		case <-uiDone:
		}
		return nil
	})
	return g.Wait()
}

func (h *Host) runUI(ctx context.Context, app App) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Run owns shutdown from here on; ctx only requests it.
	base := context.WithoutCancel(ctx)

	if err := h.Start(base); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(base, h.stopTimeout)
		defer cancel()
		if err := h.Stop(stopCtx); err != nil {
			h.log.Warn("Host stopped with errors.", "err", err)
		}
	}()

	appCtx, cancel := h.lifetime.Stopping().Context(base)
	defer cancel()
	return h.runApp(appCtx, app)
}

func (h *Host) runApp(ctx context.Context, app App) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Application panicked.", "panic", r)
			err = fmt.Errorf("%w: %v", ErrAppPanic, r)
		}
	}()
	return app.Run(ctx)
}
