// Package store holds the client-side state containers. A container owns the
// local copy of one backend collection, exposes actions that call the
// endpoint wrappers and reconcile the result, and tracks loading and error
// flags for views.
//
// Actions never return errors. They resolve to a model.Result mirroring the
// envelope of the call they made.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/opsdesk/internal/observability"
	"github.com/pitabwire/opsdesk/internal/oplog"
	"github.com/pitabwire/opsdesk/model"
)

// Phase is what a view should render for a state.
type Phase string

// Phases in precedence order.
const (
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseEmpty   Phase = "empty"
	PhaseReady   Phase = "ready"
)

// CreatePolicy decides how a collection reconciles a successful create.
type CreatePolicy int

const (
	// Append adds the returned entity to the local collection.
	Append CreatePolicy = iota
	// Refetch reloads the whole collection from the server.
	Refetch
)

func (p CreatePolicy) String() string {
	if p == Refetch {
		return "refetch"
	}
	return "append"
}

type settings struct {
	name       string
	policy     CreatePolicy
	staleGuard bool
	filter     model.Filter
	logger     *zap.Logger
	metrics    *observability.Metrics
	oplog      *oplog.Log
}

// Option configures a container.
type Option func(*settings)

// WithName overrides the container name used in logs and metrics.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithCreatePolicy selects how creates are reconciled.
func WithCreatePolicy(p CreatePolicy) Option {
	return func(s *settings) { s.policy = p }
}

// WithStaleGuard discards a fetch response when a response to a later fetch
// has already been applied. Without it the last response to arrive wins.
func WithStaleGuard() Option {
	return func(s *settings) { s.staleGuard = true }
}

// WithFilter sets the filter every fetch starts from.
func WithFilter(f model.Filter) Option {
	return func(s *settings) { s.filter = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics records action outcomes and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithOperationLog sets the operation log of a DeliveryPanel.
func WithOperationLog(l *oplog.Log) Option {
	return func(s *settings) { s.oplog = l }
}

func newSettings(name string, opts []Option) settings {
	s := settings{name: name}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// core is the lifecycle shared by every container: the loading counter, the
// error slot, change notification and the lifetime context cancelled by
// Close. Container state is guarded by mu.
type core struct {
	name    string
	logger  *zap.Logger
	metrics *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight int
	err      string
	closed   bool

	subs notifier
}

func (c *core) init(s settings) {
	c.name = s.name
	c.logger = s.logger.With(zap.String("store", s.name))
	c.metrics = s.metrics
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.subs.subs = make(map[int]chan struct{})
}

// Name returns the container name.
func (c *core) Name() string { return c.name }

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce: a slow reader sees at most one pending value.
func (c *core) Subscribe() (<-chan struct{}, func()) {
	return c.subs.subscribe()
}

// ClearError resets the error slot.
func (c *core) ClearError() {
	c.mu.Lock()
	changed := c.err != ""
	c.err = ""
	c.mu.Unlock()
	if changed {
		c.subs.notify()
	}
}

// Close cancels in-flight requests. Responses that arrive afterwards are
// dropped and new actions fail immediately.
func (c *core) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.subs.closeAll()
}

func (c *core) begin() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.err = ""
	c.inflight++
	c.mu.Unlock()
	c.subs.notify()
	return true
}

func (c *core) end(res model.Result) {
	c.mu.Lock()
	c.inflight--
	if !c.closed && !res.Success {
		c.err = res.Message
	}
	c.mu.Unlock()
	c.subs.notify()
}

// apply runs fn under the lock unless the container was closed.
func (c *core) apply(fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	fn()
	c.mu.Unlock()
	c.subs.notify()
	return true
}

// bind derives a context cancelled by either ctx or Close.
func (c *core) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *core) closedResult() model.Result {
	return model.Failed(model.ErrCancelled, c.name+" store is closed")
}

// run wraps an action: it clears the error, holds the loading flag for the
// duration of fn, and records the outcome.
func (c *core) run(ctx context.Context, action string, fn func(context.Context) model.Result) (res model.Result) {
	if !c.begin() {
		return c.closedResult()
	}
	start := time.Now()
	ctx, cancel := c.bind(ctx)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "store."+c.name+"."+action,
		observability.AttrStore.String(c.name),
	)
	defer func() {
		if r := recover(); r != nil {
			res = model.Failed(model.ErrDecodeFailure, fmt.Sprintf("%s %s failed unexpectedly", c.name, action))
			c.logger.Error("store: panic in action", zap.String("action", action), zap.Any("panic", r))
		}
		c.end(res)
		c.metrics.RecordStoreAction(c.name, action, res.Success, time.Since(start))

		log := observability.ContextLogger(ctx, c.logger)
		fields := []zap.Field{
			zap.String("action", action),
			zap.Bool("success", res.Success),
			zap.String("message", res.Message),
			zap.Duration("duration", time.Since(start)),
		}
		var spanErr error
		if res.Success {
			log.Info("store action", fields...)
		} else {
			log.Warn("store action", append(fields, zap.String("code", res.Code))...)
			spanErr = errors.New(res.Message)
		}
		span.SetAttributes(observability.AttrOutcome.String(observability.Outcome(res.Success)))
		observability.EndSpanWithError(span, spanErr)
	}()
	return fn(ctx)
}

// status returns the loading flag and error under the lock. Callers hold mu.
func (c *core) status() (bool, string) {
	return c.inflight > 0, c.err
}

type notifier struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan struct{}
	closed bool
}

func (n *notifier) subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan struct{}, 1)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.next
	n.next++
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
