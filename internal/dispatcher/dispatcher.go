// Package dispatcher owns the telemetry flush loop: it validates and queues
// tracked events, batches them to the transport, and retries retryable
// failures with exponential backoff.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/dinetrace/internal/catalog"
	"github.com/gyaneshwarpardhi/dinetrace/internal/connectivity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/identity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/metrics"
	"github.com/gyaneshwarpardhi/dinetrace/internal/sanitize"
	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
	"github.com/gyaneshwarpardhi/dinetrace/internal/transport"
)

const (
	MinFlushInterval     = time.Second
	DefaultFlushInterval = 10 * time.Second
	DefaultMaxBatchSize  = 20

	RetryBaseDelay = 3 * time.Second
	RetryMaxDelay  = 60 * time.Second
	RetryMaxJitter = time.Second
)

// Queue is the subset of queue.Queue the dispatcher needs.
type Queue interface {
	Size() int
	Enqueue(ev event.Event)
	DequeueBatch(n int) []event.Event
	RequeueFront(events []event.Event)
}

// Options configures a Dispatcher.
type Options struct {
	Enabled       bool
	MaxBatchSize  int
	FlushInterval time.Duration

	AnonymousID string
	Source      string
	Platform    string
	AppEnv      string

	Queue     Queue
	Transport transport.Transport
	Scheduler scheduler.Scheduler
	// Online, when set, triggers an immediate flush on reconnect.
	Online    connectivity.Signal
	Sanitizer *sanitize.Sanitizer
	Logger    *slog.Logger
	Report    fault.Reporter

	// Jitter returns the random part of a retry delay. Defaults to [0, 1s).
	Jitter func() time.Duration
	NewID  func() string
}

// FlushOptions tunes a single flush.
type FlushOptions struct {
	// Keepalive marks a flush issued during teardown.
	Keepalive bool
}

// FlushReport summarizes one flush cycle.
type FlushReport struct {
	Skipped  bool
	Batches  int
	Sent     int
	Dropped  int
	Requeued int
}

type trigger string

const (
	triggerManual    trigger = "manual"
	triggerTick      trigger = "tick"
	triggerThreshold trigger = "threshold"
	triggerRetry     trigger = "retry"
	triggerOnline    trigger = "online"
	triggerEnable    trigger = "enable"
)

// timerDriven triggers defer to a pending retry's backoff.
func (t trigger) timerDriven() bool {
	return t == triggerTick || t == triggerThreshold
}

// Dispatcher is safe for concurrent use. Only one flush cycle runs at a time
// and at most one retry timer is pending.
type Dispatcher struct {
	opts      Options
	queue     Queue
	transport transport.Transport
	sched     scheduler.Scheduler
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
	report    fault.Reporter
	jitter    func() time.Duration
	newID     func() string

	mu               sync.Mutex
	enabled          bool
	started          bool
	flushing         bool
	thresholdPending bool
	epoch            uint64
	retryAttempt     int
	retryDelay       time.Duration
	retryTimer       scheduler.Timer
	ticker           scheduler.Timer
	unsubscribe      func()
}

// New builds a Dispatcher. Queue and Transport are required.
func New(opts Options) (*Dispatcher, error) {
	if opts.Queue == nil {
		return nil, errors.New("dispatcher: queue is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("dispatcher: transport is required")
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.FlushInterval < MinFlushInterval {
		opts.FlushInterval = MinFlushInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.New(sanitize.DefaultOptions())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Report == nil {
		opts.Report = fault.Log(opts.Logger)
	}
	if opts.Jitter == nil {
		opts.Jitter = func() time.Duration { return rand.N(RetryMaxJitter) }
	}
	if opts.NewID == nil {
		opts.NewID = identity.NewID
	}
	return &Dispatcher{
		opts:      opts,
		queue:     opts.Queue,
		transport: opts.Transport,
		sched:     opts.Scheduler,
		sanitizer: opts.Sanitizer,
		logger:    opts.Logger.With("component", "dispatcher"),
		report:    opts.Report,
		jitter:    opts.Jitter,
		newID:     opts.NewID,
		enabled:   opts.Enabled,
	}, nil
}

// RetryDelay is the backoff before retry attempt (1-based):
// min(3s * 2^(attempt-1) + jitter, 60s).
func RetryDelay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		// 3s * 2^5 already exceeds the ceiling.
		return RetryMaxDelay
	}
	delay := RetryBaseDelay<<(attempt-1) + jitter
	if delay > RetryMaxDelay {
		return RetryMaxDelay
	}
	return delay
}

// Start begins the periodic flush timer and subscribes to the online signal.
// Calling Start while running replaces the previous timer and subscription.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.started = true
	d.ticker = d.sched.Every(d.opts.FlushInterval, func() {
		d.flush(context.Background(), FlushOptions{}, triggerTick)
	})
	if d.opts.Online != nil {
		d.unsubscribe = d.opts.Online.Subscribe(func() { d.requestFlush(triggerOnline) })
	}
	d.logger.Debug("dispatcher started", "flush_interval", d.opts.FlushInterval, "max_batch_size", d.opts.MaxBatchSize)
}

// Stop cancels the periodic and retry timers and detaches the online
// subscription. An in-flight send is not cancelled.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.logger.Debug("dispatcher stopped")
}

func (d *Dispatcher) stopLocked() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
	if d.retryTimer != nil {
		d.retryTimer.Stop()
		d.retryTimer = nil
	}
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	d.started = false
	d.epoch++
}

// SetEnabled flips the kill switch. Re-enabling requests an immediate flush.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.mu.Lock()
	was := d.enabled
	d.enabled = enabled
	d.mu.Unlock()
	if enabled && !was {
		d.requestFlush(triggerEnable)
	}
	if enabled != was {
		d.logger.Info("telemetry enabled changed", "enabled", enabled)
	}
}

// Enabled reports the kill switch state.
func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// PendingRetry reports the current retry attempt and scheduled delay.
func (d *Dispatcher) PendingRetry() (attempt int, delay time.Duration, pending bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retryAttempt, d.retryDelay, d.retryTimer != nil
}

// Track validates, sanitizes and queues one event. It never fails from the
// caller's point of view; rejected input is reported as a fault.
func (d *Dispatcher) Track(in event.Input) {
	defer d.recoverFault("track")

	d.mu.Lock()
	enabled := d.enabled
	d.mu.Unlock()
	if !enabled {
		return
	}

	// Sanitizing can remove required values, so validate what will be queued.
	props := d.sanitizer.Sanitize(in.Properties)
	if err := catalog.Validate(in.Name, props); err != nil {
		reason := "missing_keys"
		if errors.Is(err, catalog.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		metrics.EventsDropped.WithLabelValues(reason).Inc()
		d.report(fault.Fault{Component: "dispatcher", Op: "validate", Err: err, Attrs: []any{"event_name", string(in.Name)}})
		return
	}

	props["source"] = d.opts.Source
	props["platform"] = d.opts.Platform
	props["appEnv"] = d.opts.AppEnv

	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = d.sched.Now()
	}
	ev := event.Event{
		ID:         d.newID(),
		Name:       in.Name,
		Version:    event.Version,
		OccurredAt: occurredAt.UTC(),
		Properties: props,
	}
	d.queue.Enqueue(ev)
	metrics.EventsTracked.WithLabelValues(string(in.Name)).Inc()
	d.logger.Debug("event tracked", "event_name", in.Name, "event_id", ev.ID)

	if d.queue.Size() >= d.opts.MaxBatchSize {
		d.requestFlush(triggerThreshold)
	}
}

// Flush sends queued events until the queue is empty, a retryable failure
// occurs, or another flush is already running (in which case it returns
// immediately with Skipped set).
func (d *Dispatcher) Flush(ctx context.Context, opts FlushOptions) FlushReport {
	return d.flush(ctx, opts, triggerManual)
}

// requestFlush runs a flush on the scheduler so the caller never waits on
// the network.
func (d *Dispatcher) requestFlush(t trigger) {
	if t == triggerThreshold {
		d.mu.Lock()
		if d.thresholdPending {
			d.mu.Unlock()
			return
		}
		d.thresholdPending = true
		d.mu.Unlock()
	}
	d.sched.AfterFunc(0, func() {
		if t == triggerThreshold {
			d.mu.Lock()
			d.thresholdPending = false
			d.mu.Unlock()
		}
		d.flush(context.Background(), FlushOptions{}, t)
	})
}

func (d *Dispatcher) flush(ctx context.Context, opts FlushOptions, t trigger) (report FlushReport) {
	defer d.recoverFault("flush")

	d.mu.Lock()
	if !d.enabled || d.flushing || (t.timerDriven() && d.retryTimer != nil) {
		d.mu.Unlock()
		return FlushReport{Skipped: true}
	}
	d.flushing = true
	epoch := d.epoch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.flushing = false
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		proceed := d.enabled && d.epoch == epoch
		d.mu.Unlock()
		if !proceed {
			return report
		}

		batch := d.queue.DequeueBatch(d.opts.MaxBatchSize)
		if len(batch) == 0 {
			return report
		}
		report.Batches++

		res := d.send(ctx, batch, opts.Keepalive)
		metrics.BatchesSent.WithLabelValues(res.Outcome.String()).Inc()

		switch res.Outcome {
		case transport.OK:
			report.Sent += len(batch)
			metrics.EventsSent.Add(float64(len(batch)))
			d.mu.Lock()
			d.retryAttempt = 0
			d.retryDelay = 0
			if d.retryTimer != nil {
				d.retryTimer.Stop()
				d.retryTimer = nil
			}
			d.mu.Unlock()
			d.logger.Debug("batch sent", "batch_size", len(batch), "status", res.Status, "trigger", string(t), "keepalive", opts.Keepalive)

		case transport.Retryable:
			d.queue.RequeueFront(batch)
			report.Requeued += len(batch)
			d.scheduleRetry(epoch)
			d.logger.Warn("batch send failed, will retry",
				"batch_size", len(batch), "status", res.Status, "code", res.Code, "err", res.Err)
			return report

		default:
			report.Dropped += len(batch)
			metrics.EventsDropped.WithLabelValues("permanent_failure").Add(float64(len(batch)))
			d.report(fault.Fault{
				Component: "dispatcher",
				Op:        "send",
				Level:     fault.Error,
				Err:       res.Err,
				Attrs:     []any{"status", res.Status, "code", res.Code, "dropped", len(batch)},
			})
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, batch []event.Event, keepalive bool) (res transport.Result) {
	start := time.Now()
	defer func() {
		metrics.SendDuration.Observe(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			res = transport.Result{Outcome: transport.Retryable, Status: transport.StatusOffline, Err: fmt.Errorf("transport panic: %v", r)}
			d.report(fault.Fault{Component: "dispatcher", Op: "send", Level: fault.Error, Err: res.Err})
		}
	}()
	return d.transport.Send(ctx, transport.Batch{AnonymousID: d.opts.AnonymousID, Events: batch}, keepalive)
}

// scheduleRetry arms the single retry timer unless one is pending or the
// dispatcher was stopped since the flush began.
func (d *Dispatcher) scheduleRetry(epoch uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started || d.epoch != epoch || d.retryTimer != nil {
		return
	}
	d.retryAttempt++
	d.retryDelay = RetryDelay(d.retryAttempt, d.jitter())
	metrics.RetriesScheduled.Inc()

	var timer scheduler.Timer
	timer = d.sched.AfterFunc(d.retryDelay, func() {
		d.mu.Lock()
		if d.retryTimer == timer {
			d.retryTimer = nil
		}
		d.mu.Unlock()
		d.flush(context.Background(), FlushOptions{}, triggerRetry)
	})
	d.retryTimer = timer
	d.logger.Debug("retry scheduled", "attempt", d.retryAttempt, "delay", d.retryDelay)
}

func (d *Dispatcher) recoverFault(op string) {
	if r := recover(); r != nil {
		d.report(fault.Fault{Component: "dispatcher", Op: op, Level: fault.Error, Err: fmt.Errorf("panic: %v", r)})
	}
}
