// Package channel provides the named, byte-stream, one-writer-per-connection
// channel used to forward activations between processes.
//
// A channel is keyed by an Identity. The reader side listens and reads each
// connection to EOF; the writer side dials, writes one payload and
// half-closes.
package channel

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"monarch"
)

// Transport opens the two ends of a named channel.
type Transport interface {
	// Listen opens the receiving end. Only the primary instance listens.
	Listen(id monarch.Identity) (net.Listener, error)
	// Dial connects to the receiving end, honoring ctx for timeout and
	// cancellation.
	Dial(ctx context.Context, id monarch.Identity) (net.Conn, error)
}

// Unix maps identities to Unix domain sockets in Dir.
type Unix struct {
	Dir string
}

var _ Transport = Unix{}

// DefaultDir returns the per-user runtime directory for sockets and lock
// files: $XDG_RUNTIME_DIR/monarch, falling back to a uid-scoped directory
// under the system temp dir.
func DefaultDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "monarch")
	}
	return filepath.Join(os.TempDir(), "monarch-"+strconv.Itoa(os.Getuid()))
}

func (u Unix) dir() string {
	if u.Dir != "" {
		return u.Dir
	}
	return DefaultDir()
}

// Path returns the socket path for id.
func (u Unix) Path(id monarch.Identity) string {
	return filepath.Join(u.dir(), id.FileStem()+".sock")
}

// Listen removes a stale socket left by a previous primary and listens on
// the socket for id. The socket file is removed when the listener closes.
func (u Unix) Listen(id monarch.Identity) (net.Listener, error) {
	if err := os.MkdirAll(u.dir(), 0o700); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}
	path := u.Path(id)
	// Remove stale socket from a previous run (may not exist).
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	return ln, nil
}

// Dial connects to the socket for id.
func (u Unix) Dial(ctx context.Context, id monarch.Identity) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", u.Path(id))
	if err != nil {
		return nil, fmt.Errorf("connect to socket %q: %w", u.Path(id), err)
	}
	return conn, nil
}

type halfWriteCloser interface {
	CloseWrite() error
}

// CloseWrite signals end of stream to the reader. Connections without
// half-close support are closed entirely.
func CloseWrite(conn net.Conn) error {
	if c, ok := conn.(halfWriteCloser); ok {
		return c.CloseWrite()
	}
	return conn.Close()
}
