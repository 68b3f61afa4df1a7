// Package lifetime provides the application lifecycle signals observed by
// hosted services and the UI run loop.
//
// A Lifetime owns three one-shot signals. Started and Stopped are pure
// notifications. Stopping is the trigger consumers use to begin teardown;
// anyone may request it through StopApplication.
package lifetime

import "log/slog"

// Lifetime is the set of lifecycle signals for one process. It is created
// once with the host and never recreated.
type Lifetime struct {
	started  *Signal
	stopping *Signal
	stopped  *Signal
	log      *slog.Logger
}

// New creates a Lifetime with all signals pending. A nil logger uses
// slog.Default.
func New(log *slog.Logger) *Lifetime {
	if log == nil {
		log = slog.Default()
	}
	return &Lifetime{
		started:  NewSignal("started", log),
		stopping: NewSignal("stopping", log),
		stopped:  NewSignal("stopped", log),
		log:      log,
	}
}

// Started fires once every hosted service has started.
func (l *Lifetime) Started() *Signal { return l.started }

// Stopping fires when shutdown begins.
func (l *Lifetime) Stopping() *Signal { return l.stopping }

// Stopped fires once every hosted service has been stopped.
func (l *Lifetime) Stopped() *Signal { return l.stopped }

// StopApplication requests shutdown by firing Stopping.
func (l *Lifetime) StopApplication() {
	if l.stopping.Fire() {
		l.log.Debug("Application stop requested.")
	}
}

// NotifyStarted fires Started.
func (l *Lifetime) NotifyStarted() {
	if l.started.Fire() {
		l.log.Debug("Application started.")
	}
}

// NotifyStopped fires Stopped.
func (l *Lifetime) NotifyStopped() {
	if l.stopped.Fire() {
		l.log.Debug("Application stopped.")
	}
}

// Phase derives the current phase from the signals.
func (l *Lifetime) Phase() Phase {
	switch {
	case l.stopped.Fired():
		return PhaseStopped
	case l.stopping.Fired():
		return PhaseStopping
	case l.started.Fired():
		return PhaseRunning
	default:
		return PhasePending
	}
}
