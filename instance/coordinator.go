package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"monarch"
	"monarch/internal/channel"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultConnectAttempts covers the window where the primary has
	// registered its identity but not yet opened the channel.
	DefaultConnectAttempts = 5
	DefaultConnectTimeout  = 1 * time.Second
	DefaultRetryDelay      = 100 * time.Millisecond
	// DefaultRedirectTimeout bounds the OS-level hand-off after sending.
	DefaultRedirectTimeout = 5 * time.Second

	tracerName = "monarch/instance"
)

var (
	// ErrIsCurrent is returned by SendAndRedirect in the primary process.
	ErrIsCurrent = errors.New("this process is the primary instance")
	// ErrPrimaryUnreachable means no connection could be made within the
	// retry budget.
	ErrPrimaryUnreachable = errors.New("primary instance unreachable")
	// ErrSendFailed means the channel accepted a connection but the
	// envelope could not be written.
	ErrSendFailed = errors.New("send activation envelope")
)

// Coordinator holds this process's registration for an Identity.
type Coordinator struct {
	id        monarch.Identity
	reg       Registration
	transport channel.Transport
	log       *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	onActivated []func()

	attempts        int
	connectTimeout  time.Duration
	retryDelay      time.Duration
	redirectTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTransport sets the channel transport. Defaults to channel.Unix in the
// default runtime dir.
func WithTransport(t channel.Transport) Option {
	return func(c *Coordinator) { c.transport = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithTracerProvider sets where send spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// WithRetry overrides the connect attempt count, per-attempt timeout and
// delay between attempts. Non-positive values keep the defaults.
func WithRetry(attempts int, connectTimeout, delay time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if connectTimeout > 0 {
			c.connectTimeout = connectTimeout
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithRedirectTimeout bounds the OS-level redirect step.
func WithRedirectTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.redirectTimeout = d
		}
	}
}

// WithActivated registers fn to run in the primary whenever a later launch
// redirects its activation here (typically: bring the main window to front).
func WithActivated(fn func()) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.onActivated = append(c.onActivated, fn)
		}
	}
}

// WithClock overrides the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New registers id with the platform. The registration is held until Close.
func New(id monarch.Identity, p Platform, opts ...Option) (*Coordinator, error) {
	if id.IsZero() {
		return nil, errors.New("instance: zero identity")
	}
	c := &Coordinator{
		id:              id,
		transport:       channel.Unix{},
		log:             slog.Default(),
		tracer:          otel.Tracer(tracerName),
		now:             time.Now,
		attempts:        DefaultConnectAttempts,
		connectTimeout:  DefaultConnectTimeout,
		retryDelay:      DefaultRetryDelay,
		redirectTimeout: DefaultRedirectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	reg, err := p.FindOrRegister(id)
	if err != nil {
		return nil, fmt.Errorf("register instance %s: %w", id, err)
	}
	c.reg = reg

	if reg.IsCurrent() {
		for _, fn := range c.onActivated {
			reg.OnActivated(fn)
		}
		c.log.Info("Registered as primary instance.", "id", id.String())
	} else {
		c.log.Info("Another instance is already running.", "id", id.String())
	}
	return c, nil
}

// Identity returns the coordinated identity.
func (c *Coordinator) Identity() monarch.Identity { return c.id }

// IsCurrent reports whether this process won the single-instance race.
func (c *Coordinator) IsCurrent() bool { return c.reg.IsCurrent() }

// Close releases the platform registration.
func (c *Coordinator) Close() error { return c.reg.Close() }

// SendAndRedirect forwards args to the primary and then asks the platform to
// hand the activation over. The redirect runs whether or not the send
// succeeded, so the primary is brought forward even when its channel is
// unhealthy; its outcome is logged and never changes the result. The
// returned error is the send outcome.
func (c *Coordinator) SendAndRedirect(ctx context.Context, args []string) error {
	if c.IsCurrent() {
		return ErrIsCurrent
	}

	sendErr := c.Send(ctx, args)
	if sendErr != nil {
		c.log.Warn("Failed to forward activation to primary instance.", "id", c.id.String(), "err", sendErr)
	}

	redirectCtx, cancel := context.WithTimeout(ctx, c.redirectTimeout)
	defer cancel()
	if err := c.reg.Redirect(redirectCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("Activation redirect timed out.", "id", c.id.String(), "timeout", c.redirectTimeout)
		} else {
			c.log.Warn("Activation redirect failed.", "id", c.id.String(), "err", err)
		}
	}

	return sendErr
}

// Send writes one envelope {now, args} to the primary's channel.
func (c *Coordinator) Send(ctx context.Context, args []string) (err error) {
	ctx, span := c.tracer.Start(ctx, "instance.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("instance.id", c.id.String()),
			attribute.Int("instance.args", len(args)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	payload, err := monarch.NewEnvelope(c.now(), args).Encode()
	if err != nil {
		return err
	}

	attempts := 0
	conn, err := backoff.RetryWithData(func() (net.Conn, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
		conn, err := c.transport.Dial(attemptCtx, c.id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			c.log.Debug("Connect to primary failed.", "attempt", attempts, "err", err)
			return nil, err
		}
		return conn, nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.attempts-1)), ctx))
	span.SetAttributes(attribute.Int("instance.connect_attempts", attempts))
	if err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrPrimaryUnreachable, attempts, err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := channel.CloseWrite(conn); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.log.Debug("Forwarded activation to primary instance.", "id", c.id.String(), "args", len(args))
	return nil
}
