package host

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type fakeCoordinator struct {
	current bool
	sent    [][]string
	err     error
}

func (f *fakeCoordinator) IsCurrent() bool { return f.current }

func (f *fakeCoordinator) SendAndRedirect(_ context.Context, args []string) error {
	f.sent = append(f.sent, args)
	return f.err
}

func TestRun_SecondaryForwardsArgs(t *testing.T) {
	rec := &recorder{}
	coord := &fakeCoordinator{err: errors.New("unreachable")}
	h := newHost(services(rec, "a"), WithCoordinator(coord), WithArgs([]string{"--open", "x"}))

	ran := false
	err := h.Run(context.Background(), AppFunc(func(context.Context) error {
		ran = true
		return nil
	}))
	if !errors.Is(err, coord.err) {
		t.Fatalf("Run() error = %v, want %v", err, coord.err)
	}
	if ran {
		t.Fatal("app ran in a secondary instance")
	}
	if len(rec.get()) != 0 {
		t.Fatalf("services touched in a secondary instance: %v", rec.get())
	}
	if len(coord.sent) != 1 || !slices.Equal(coord.sent[0], []string{"--open", "x"}) {
		t.Fatalf("sent = %v, want one send of [--open x]", coord.sent)
	}
}

func TestRun_NilApp(t *testing.T) {
	if err := New().Run(context.Background(), nil); !errors.Is(err, ErrNoApp) {
		t.Fatalf("Run(nil) error = %v, want ErrNoApp", err)
	}
}

func TestRun_AppReturnsStopsHost(t *testing.T) {
	rec := &recorder{}
	h := newHost(services(rec, "a", "b"), WithCoordinator(&fakeCoordinator{current: true}))
	appErr := errors.New("window closed badly")

	err := h.Run(context.Background(), AppFunc(func(ctx context.Context) error {
		rec.add("app")
		return appErr
	}))
	if !errors.Is(err, appErr) {
		t.Fatalf("Run() error = %v, want %v", err, appErr)
	}
	want := []string{"start a", "start b", "app", "stop b", "stop a"}
	if got := rec.get(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if !h.Lifetime().Stopped().Fired() {
		t.Fatal("stopped not signaled")
	}
}

func TestRun_AppPanicIsReturned(t *testing.T) {
	rec := &recorder{}
	h := newHost(services(rec, "a"))

	err := h.Run(context.Background(), AppFunc(func(context.Context) error {
		panic("render failure")
	}))
	if !errors.Is(err, ErrAppPanic) {
		t.Fatalf("Run() error = %v, want ErrAppPanic", err)
	}
	want := []string{"start a", "stop a"}
	if got := rec.get(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestRun_StartFailureSkipsApp(t *testing.T) {
	rec := &recorder{}
	svcs := services(rec, "a", "b")
	svcs[1].startErr = errors.New("bind")
	h := newHost(svcs)

	err := h.Run(context.Background(), AppFunc(func(context.Context) error {
		rec.add("app")
		return nil
	}))
	if !errors.Is(err, ErrStartFailed) {
		t.Fatalf("Run() error = %v, want ErrStartFailed", err)
	}
	want := []string{"start a", "start b", "stop a"}
	if got := rec.get(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestRun_CancelRequestsStop(t *testing.T) {
	rec := &recorder{}
	h := newHost(services(rec, "a"))
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- h.Run(ctx, AppFunc(func(ctx context.Context) error {
			<-ctx.Done()
			rec.add("app done")
			return nil
		}))
	}()

	select {
	case <-h.Lifetime().Started().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("host did not start")
	}
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// The stopping signal cancels the app before services stop.
	want := []string{"start a", "app done", "stop a"}
	if got := rec.get(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestRun_StopApplicationEndsApp(t *testing.T) {
	h := New()
	errc := make(chan error, 1)
	go func() {
		errc <- h.Run(context.Background(), AppFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
	}()

	<-h.Lifetime().Started().Done()
	h.Lifetime().StopApplication()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after StopApplication")
	}
	if !h.Lifetime().Stopped().Fired() {
		t.Fatal("stopped not signaled")
	}
}
