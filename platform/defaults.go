package platform

import (
	"errors"
	"path/filepath"

	"monarch"
	"monarch/internal/channel"
)

const (
	lockSuffix     = ".lock"
	ownerSuffix    = ".owner"
	activateSuffix = ".activate"
)

// ErrUnsupported is returned by Local on platforms without a lock-file
// implementation.
var ErrUnsupported = errors.New("single-instance registration not supported on this platform")

// ErrNoPrimary is returned by Redirect when no process holds the identity.
var ErrNoPrimary = errors.New("no primary instance registered")

func lockPath(dir string, id monarch.Identity) string {
	return filepath.Join(runtimeDir(dir), id.FileStem()+lockSuffix)
}

func ownerPath(dir string, id monarch.Identity) string {
	return filepath.Join(runtimeDir(dir), id.FileStem()+ownerSuffix)
}

func activatePath(dir string, id monarch.Identity) string {
	return filepath.Join(runtimeDir(dir), id.FileStem()+activateSuffix)
}

func runtimeDir(dir string) string {
	if dir != "" {
		return dir
	}
	return channel.DefaultDir()
}
