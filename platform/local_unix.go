//go:build unix

package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"monarch"
	"monarch/instance"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ownerPollInterval is how often Redirect re-reads the owner record while
// the lock holder has not yet published a live one.
const ownerPollInterval = 50 * time.Millisecond

// maxOwnerRecord bounds how much of an owner file Redirect reads.
const maxOwnerRecord = 4 << 10

var (
	errNoLiveOwner = errors.New("no live owner record")
	errOwnerRecord = errors.New("malformed owner record")
)

// Local registers identities with an exclusive, non-blocking flock on a
// lock file in Dir. The kernel releases the lock when the holder exits, so
// a crashed primary never blocks the next launch.
//
// The primary publishes "<pid>\n<identity>\n<nonce>\n" in a separate owner
// file that it keeps flocked for its whole run. A record whose file nobody
// holds was left by a dead process and is never signaled.
type Local struct {
	Dir string
	Log *slog.Logger
}

var _ instance.Platform = Local{}

// FindOrRegister tries to take the lock for id. The winner starts listening
// for activations and then publishes its owner record.
func (l Local) FindOrRegister(id monarch.Identity) (instance.Registration, error) {
	if err := os.MkdirAll(runtimeDir(l.Dir), 0o700); err != nil {
		return nil, fmt.Errorf("create runtime dir: %w", err)
	}

	path := lockPath(l.Dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		_ = f.Close()
		return &localRegistration{id: id, dir: l.Dir, log: l.logger()}, nil
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	reg := &localRegistration{
		id:      id,
		dir:     l.Dir,
		log:     l.logger(),
		current: true,
		nonce:   uuid.NewString(),
		lock:    f,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}
	// A stale marker from a crashed run would trigger a spurious activation.
	_ = os.Remove(activatePath(l.Dir, id))

	// SIGUSR1 terminates a process that has not asked for it, so the handler
	// must be installed before any secondary can learn our PID.
	signal.Notify(reg.signals, unix.SIGUSR1)
	go reg.watch()

	owner, err := publishOwner(l.Dir, id, reg.nonce)
	if err != nil {
		signal.Stop(reg.signals)
		close(reg.done)
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, err
	}
	reg.owner = owner
	return reg, nil
}

func (l Local) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

// publishOwner writes the owner record to a temporary file, flocks it and
// renames it into place. The inode at the owner path is therefore locked
// from the moment it appears until its writer exits or closes it.
func publishOwner(dir string, id monarch.Identity, nonce string) (*os.File, error) {
	f, err := os.CreateTemp(runtimeDir(dir), id.FileStem()+ownerSuffix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create owner file: %w", err)
	}
	fail := func(err error) (*os.File, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fail(fmt.Errorf("lock owner file: %w", err))
	}
	if _, err := fmt.Fprintf(f, "%d\n%s\n%s\n", os.Getpid(), id, nonce); err != nil {
		return fail(fmt.Errorf("write owner file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync owner file: %w", err))
	}
	if err := os.Rename(f.Name(), ownerPath(dir, id)); err != nil {
		return fail(fmt.Errorf("publish owner file: %w", err))
	}
	return f, nil
}

type owner struct {
	pid   int
	nonce string
}

// readOwner returns the record at path if a live process holds its lock and
// it names id.
func readOwner(path string, id monarch.Identity) (owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return owner{}, err
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB)
	if err == nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return owner{}, errNoLiveOwner
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		return owner{}, fmt.Errorf("probe owner lock: %w", err)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxOwnerRecord))
	if err != nil {
		return owner{}, err
	}
	fields := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(fields) != 3 {
		return owner{}, fmt.Errorf("%w: %d fields in %s", errOwnerRecord, len(fields), path)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return owner{}, fmt.Errorf("%w: bad pid %q", errOwnerRecord, fields[0])
	}
	if fields[1] != id.String() {
		return owner{}, fmt.Errorf("%w: identity %q, want %q", errOwnerRecord, fields[1], id)
	}
	if fields[2] == "" {
		return owner{}, fmt.Errorf("%w: empty nonce", errOwnerRecord)
	}
	return owner{pid: pid, nonce: fields[2]}, nil
}

type localRegistration struct {
	id      monarch.Identity
	dir     string
	log     *slog.Logger
	current bool

	// Primary only.
	nonce   string
	lock    *os.File
	owner   *os.File
	signals chan os.Signal
	done    chan struct{}

	mu        sync.Mutex
	callbacks []func()
	closed    bool
}

func (r *localRegistration) IsCurrent() bool { return r.current }

func (r *localRegistration) OnActivated(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// watch runs activation callbacks for each SIGUSR1 that comes with this
// run's marker. Other identities held by the same process share the signal,
// and a marker carrying another run's nonce is discarded.
func (r *localRegistration) watch() {
	for {
		select {
		case <-r.done:
			return
		case <-r.signals:
		}
		if !r.takeMarker() {
			continue
		}

		r.mu.Lock()
		callbacks := append([]func(){}, r.callbacks...)
		r.mu.Unlock()

		r.log.Debug("Activation redirected to this instance.", "id", r.id.String())
		for _, fn := range callbacks {
			r.invoke(fn)
		}
	}
}

func (r *localRegistration) takeMarker() bool {
	path := activatePath(r.dir, r.id)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	if strings.TrimSpace(string(data)) != r.nonce {
		r.log.Debug("Discarded activation marker for another run.", "id", r.id.String())
		return false
	}
	return true
}

func (r *localRegistration) invoke(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Activation callback panicked.", "id", r.id.String(), "panic", p)
		}
	}()
	fn()
}

// Redirect leaves a marker for the primary and signals it. It waits, bounded
// by ctx, for the primary to publish a live owner record.
func (r *localRegistration) Redirect(ctx context.Context) error {
	if r.current {
		return errors.New("redirect: this process is the primary instance")
	}

	o, err := r.waitOwner(ctx)
	if err != nil {
		return err
	}
	if err := writeMarker(activatePath(r.dir, r.id), o.nonce); err != nil {
		return err
	}
	if err := unix.Kill(o.pid, unix.SIGUSR1); err != nil {
		_ = os.Remove(activatePath(r.dir, r.id))
		return fmt.Errorf("signal primary (pid %d): %w", o.pid, err)
	}
	return nil
}

func (r *localRegistration) waitOwner(ctx context.Context) (owner, error) {
	ticker := time.NewTicker(ownerPollInterval)
	defer ticker.Stop()
	for {
		o, err := readOwner(ownerPath(r.dir, r.id), r.id)
		if err == nil {
			return o, nil
		}
		select {
		case <-ctx.Done():
			return owner{}, fmt.Errorf("find primary: %w", errors.Join(err, ctx.Err()))
		case <-ticker.C:
		}
	}
}

// writeMarker replaces the marker atomically so the primary never reads a
// partial nonce.
func writeMarker(path, nonce string) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("write activation marker: %w", err)
	}
	_, werr := f.WriteString(nonce)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("write activation marker: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("write activation marker: %w", err)
	}
	return nil
}

// Close stops listening for activations, withdraws the owner record and
// releases the lock. The lock file itself is left in place: removing it
// would let a process that already opened the old file and a new one both
// believe they won.
func (r *localRegistration) Close() error {
	r.mu.Lock()
	if r.closed || !r.current {
		r.closed = true
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	signal.Stop(r.signals)
	close(r.done)

	var errs []error
	// No successor can publish while we still hold the lock.
	if err := os.Remove(ownerPath(r.dir, r.id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove owner file: %w", err))
	}
	if err := r.owner.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close owner file: %w", err))
	}
	if err := unix.Flock(int(r.lock.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := r.lock.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lock file: %w", err))
	}
	return errors.Join(errs...)
}
