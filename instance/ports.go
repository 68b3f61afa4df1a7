package instance

import (
	"context"

	"monarch"
)

// Platform is the OS single-instance primitive.
// Production: platform.Local (lock file + signals)
// Testing: platform.Memory, keyed by identity string
type Platform interface {
	// FindOrRegister registers the calling process for id, or discovers the
	// process that already holds it.
	FindOrRegister(id monarch.Identity) (Registration, error)
}

// Registration is the outcome of FindOrRegister.
type Registration interface {
	// IsCurrent reports whether this process holds the identity.
	IsCurrent() bool
	// OnActivated arranges for fn to run whenever another launch redirects
	// its activation to this process. Only meaningful when IsCurrent.
	OnActivated(fn func())
	// Redirect hands the current activation to the holder of the identity.
	// Only meaningful when not IsCurrent.
	Redirect(ctx context.Context) error
	// Close releases the registration.
	Close() error
}
