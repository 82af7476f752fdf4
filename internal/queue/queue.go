// Package queue implements the bounded, persisted FIFO of events waiting to
// be sent.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/dinetrace/internal/catalog"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
	"github.com/gyaneshwarpardhi/dinetrace/internal/metrics"
)

// DefaultKey is the store key the queue persists under.
const DefaultKey = "dinetrace.queue.v1"

// Options configures a Queue.
type Options struct {
	MaxSize int
	Key     string
	// Timeout bounds each storage call.
	Timeout time.Duration
	Report  fault.Reporter
}

// Queue is a sliding-window FIFO: when full, the oldest events are dropped.
// Every mutation writes the whole queue to the store.
type Queue struct {
	mu     sync.Mutex
	items  []event.Event
	store  kvstore.Store
	opts   Options
	report fault.Reporter
}

// New builds a Queue and hydrates it from store. Storage or decoding
// failures degrade to an empty queue.
func New(store kvstore.Store, opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 500
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	report := opts.Report
	if report == nil {
		report = fault.Discard
	}
	q := &Queue{store: store, opts: opts, report: report}
	q.hydrate()
	metrics.QueueDepth.Set(float64(len(q.items)))
	return q
}

// Size returns the number of queued events.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the configured maximum size.
func (q *Queue) Capacity() int {
	return q.opts.MaxSize
}

// Enqueue appends ev, dropping the oldest events when over capacity.
func (q *Queue) Enqueue(ev event.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, ev)
	q.trimLocked()
	q.persistLocked()
}

// DequeueBatch removes and returns up to n events from the front.
func (q *Queue) DequeueBatch(n int) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || len(q.items) == 0 {
		return []event.Event{}
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]event.Event, n)
	copy(batch, q.items[:n])
	q.items = append(q.items[:0:0], q.items[n:]...)
	q.persistLocked()
	return batch
}

// RequeueFront puts a previously dequeued batch back at the front, in order.
func (q *Queue) RequeueFront(events []event.Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]event.Event, 0, len(events)+len(q.items))
	items = append(items, events...)
	items = append(items, q.items...)
	q.items = items
	q.trimLocked()
	q.persistLocked()
}

// Events returns a snapshot of the queue, front first.
func (q *Queue) Events() []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]event.Event, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) trimLocked() {
	if over := len(q.items) - q.opts.MaxSize; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
		metrics.EventsDropped.WithLabelValues("queue_overflow").Add(float64(over))
		q.report(fault.Fault{
			Component: "queue",
			Op:        "enqueue",
			Err:       errors.New("queue over capacity, dropped oldest events"),
			Attrs:     []any{"dropped", over, "capacity", q.opts.MaxSize},
		})
	}
}

func (q *Queue) persistLocked() {
	metrics.QueueDepth.Set(float64(len(q.items)))
	data, err := json.Marshal(q.items)
	if err != nil {
		q.report(fault.Fault{Component: "queue", Op: "encode", Level: fault.Error, Err: err})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
	defer cancel()
	if err := q.store.Set(ctx, q.opts.Key, data); err != nil {
		metrics.StorageErrors.WithLabelValues("set").Inc()
		q.report(fault.Fault{Component: "queue", Op: "persist", Err: err, Attrs: []any{"size", len(q.items)}})
	}
}

func (q *Queue) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.Timeout)
	defer cancel()
	data, ok, err := q.store.Get(ctx, q.opts.Key)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("get").Inc()
		q.report(fault.Fault{Component: "queue", Op: "hydrate", Err: err})
		return
	}
	if !ok || len(data) == 0 {
		return
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		q.report(fault.Fault{Component: "queue", Op: "hydrate", Err: err, Attrs: []any{"bytes", len(data)}})
		return
	}
	discarded := 0
	for _, r := range raw {
		ev, err := decodeEvent(r)
		if err != nil || !wellFormed(ev) {
			discarded++
			continue
		}
		q.items = append(q.items, ev)
	}
	if discarded > 0 {
		q.report(fault.Fault{
			Component: "queue",
			Op:        "hydrate",
			Err:       errors.New("discarded malformed persisted events"),
			Attrs:     []any{"discarded", discarded, "kept", len(q.items)},
		})
	}
	if over := len(q.items) - q.opts.MaxSize; over > 0 {
		q.items = q.items[over:]
	}
}

// wellFormed is the structural check applied to persisted entries.
func wellFormed(ev event.Event) bool {
	return ev.ID != "" &&
		ev.Version != "" &&
		!ev.OccurredAt.IsZero() &&
		catalog.IsKnown(ev.Name) &&
		ev.Properties != nil
}

// decodeEvent keeps numeric properties as json.Number so large identifiers
// survive a reload intact.
func decodeEvent(data []byte) (event.Event, error) {
	var ev event.Event
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&ev)
	return ev, err
}
