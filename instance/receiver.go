package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"monarch"
	"monarch/internal/channel"
	"monarch/internal/check"
	"monarch/internal/eventbus"
	"monarch/lifetime"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxEnvelopeSize caps how much a single connection may send.
	MaxEnvelopeSize = 1 << 20
	// DefaultReadTimeout bounds how long a sender may hold the channel.
	DefaultReadTimeout = 10 * time.Second
	relistenDelay      = 100 * time.Millisecond
)

var errEnvelopeTooLarge = errors.New("activation envelope exceeds size limit")

// Receiver is the hosted service that accepts activations forwarded by
// secondary launches and publishes them on the event bus as
// *monarch.Envelope.
//
// Connections are served one at a time; concurrent senders wait in the
// listen backlog until their own connect timeout expires.
type Receiver struct {
	id        monarch.Identity
	transport channel.Transport
	bus       *eventbus.Bus
	stopping  *lifetime.Signal
	log       *slog.Logger
	tracer    trace.Tracer

	readTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverTransport sets the channel transport.
func WithReceiverTransport(t channel.Transport) ReceiverOption {
	return func(r *Receiver) { r.transport = t }
}

// WithReceiverLogger sets the logger.
func WithReceiverLogger(l *slog.Logger) ReceiverOption {
	return func(r *Receiver) { r.log = l }
}

// WithReceiverTracerProvider sets where receive spans are recorded.
func WithReceiverTracerProvider(tp trace.TracerProvider) ReceiverOption {
	return func(r *Receiver) { r.tracer = tp.Tracer(tracerName) }
}

// WithReadTimeout bounds the time spent reading one connection.
func WithReadTimeout(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.readTimeout = d
		}
	}
}

// WithStopping ends the receive loop when sig fires, before Stop is called.
func WithStopping(sig *lifetime.Signal) ReceiverOption {
	return func(r *Receiver) { r.stopping = sig }
}

// NewReceiver returns a Receiver for id that publishes on bus.
func NewReceiver(id monarch.Identity, bus *eventbus.Bus, opts ...ReceiverOption) *Receiver {
	check.Assert(!id.IsZero(), "instance.NewReceiver: identity must be set")
	check.Assert(bus != nil, "instance.NewReceiver: bus must not be nil")
	r := &Receiver{
		id:          id,
		transport:   channel.Unix{},
		bus:         bus,
		log:         slog.Default(),
		tracer:      otel.Tracer(tracerName),
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name identifies the receiver in host logs.
func (r *Receiver) Name() string { return "instance-receiver" }

// Start opens the channel and launches the receive loop. It returns once
// the channel is listening.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	ln, err := r.transport.Listen(r.id)
	if err != nil {
		return fmt.Errorf("open activation channel: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	if r.stopping != nil {
		var stopCancel context.CancelFunc
		loopCtx, stopCancel = r.stopping.Context(loopCtx)
		prev := cancel
		cancel = func() {
			stopCancel()
			prev()
		}
	}
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.loop(loopCtx, ln)
	}()

	r.log.Debug("Activation receiver listening.", "id", r.id.String())
	return nil
}

// Stop ends the receive loop and waits for it, or for ctx.
func (r *Receiver) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for activation receiver: %w", ctx.Err())
	}
}

func (r *Receiver) loop(ctx context.Context, ln net.Listener) {
	// Closing the listener is how a blocked Accept observes cancellation.
	var (
		lnMu    sync.Mutex
		current = ln
	)
	stop := context.AfterFunc(ctx, func() {
		lnMu.Lock()
		defer lnMu.Unlock()
		if current != nil {
			current.Close()
		}
	})
	defer stop()
	defer func() {
		lnMu.Lock()
		defer lnMu.Unlock()
		if current != nil {
			current.Close()
		}
	}()

	for {
		lnMu.Lock()
		l := current
		lnMu.Unlock()

		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("Activation channel broken, reopening.", "id", r.id.String(), "err", err)
			l.Close()

			next, err := r.relisten(ctx)
			if err != nil {
				return
			}
			lnMu.Lock()
			current = next
			lnMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			continue
		}

		r.handle(ctx, conn)
	}
}

// relisten recreates the channel, retrying until it succeeds or ctx ends.
func (r *Receiver) relisten(ctx context.Context) (net.Listener, error) {
	return backoff.RetryWithData(func() (net.Listener, error) {
		ln, err := r.transport.Listen(r.id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			r.log.Warn("Reopen activation channel failed.", "id", r.id.String(), "err", err)
			return nil, err
		}
		return ln, nil
	}, backoff.WithContext(backoff.NewConstantBackOff(relistenDelay), ctx))
}

func (r *Receiver) handle(ctx context.Context, conn net.Conn) {
	ctx, span := r.tracer.Start(ctx, "instance.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("instance.id", r.id.String())))
	defer span.End()
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	env, err := r.read(conn)
	switch {
	case err == nil:
	case errors.Is(err, monarch.ErrMalformedEnvelope):
		r.log.Warn("Discarded malformed activation.", "id", r.id.String(), "err", err)
		span.SetStatus(codes.Error, "malformed envelope")
		return
	default:
		if ctx.Err() != nil {
			return
		}
		r.log.Error("Read activation failed.", "id", r.id.String(), "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetAttributes(attribute.Int("instance.args", len(env.Args())))
	delivered := r.bus.Publish(env)
	r.log.Debug("Activation received.", "id", r.id.String(), "args", len(env.Args()), "subscribers", delivered)
}

func (r *Receiver) read(conn net.Conn) (*monarch.Envelope, error) {
	if r.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(r.readTimeout))
	}
	data, err := io.ReadAll(io.LimitReader(conn, MaxEnvelopeSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxEnvelopeSize {
		return nil, errEnvelopeTooLarge
	}
	return monarch.DecodeEnvelope(data)
}
