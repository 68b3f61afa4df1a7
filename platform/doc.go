// Package platform implements the OS single-instance primitive behind
// instance.Platform.
//
// Platform split:
//   - unix: Local, an exclusive flock on a per-identity lock file; the holder
//     is activated through SIGUSR1 plus a marker file naming the identity
//   - other: Local returns ErrUnsupported
//   - all: Memory, an in-process registry used by tests and by hosts that
//     opt out of OS registration
package platform
