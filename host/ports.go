package host

import "context"

// Service is a long-running background service managed by the Host.
// Start must return once the service is running; Stop must release it.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Named is implemented by services that want a readable name in logs.
type Named interface {
	Name() string
}

// App is the UI run loop. Run blocks until the application exits or ctx is
// cancelled because the host is stopping.
type App interface {
	Run(ctx context.Context) error
}

// AppFunc adapts a function to App.
type AppFunc func(ctx context.Context) error

func (f AppFunc) Run(ctx context.Context) error { return f(ctx) }

// Coordinator is the single-instance decision consulted by Run.
// Production: *instance.Coordinator
type Coordinator interface {
	IsCurrent() bool
	SendAndRedirect(ctx context.Context, args []string) error
}

// Notifier is told about lifecycle transitions visible outside the process.
// Production: SystemdNotifier
type Notifier interface {
	Ready() error
	Stopping() error
}
