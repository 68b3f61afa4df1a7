//go:build !unix

package platform

import (
	"log/slog"

	"monarch"
	"monarch/instance"
)

// Local is unavailable on this platform; use Memory instead.
type Local struct {
	Dir string
	Log *slog.Logger
}

var _ instance.Platform = Local{}

func (Local) FindOrRegister(monarch.Identity) (instance.Registration, error) {
	return nil, ErrUnsupported
}
