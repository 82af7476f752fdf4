// Package pagevisit turns navigation and visibility changes into
// ui.page.viewed and ui.page.dwelled events. Dwell counts only time the
// document was in the foreground.
package pagevisit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/dinetrace/internal/dispatcher"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/pagecontext"
	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
)

// UnloadDedupeWindow collapses pagehide and beforeunload firing together.
const UnloadDedupeWindow = 500 * time.Millisecond

// Sink receives the tracker's events. *dispatcher.Dispatcher satisfies it.
type Sink interface {
	Track(in event.Input)
	Flush(ctx context.Context, opts dispatcher.FlushOptions) dispatcher.FlushReport
}

// Options configures a Tracker.
type Options struct {
	Sink      Sink
	Resolver  pagecontext.Resolver
	Clock     scheduler.Clock
	SessionID string
	// InitiallyVisible is the document visibility when the tracker starts.
	InitiallyVisible bool
	Logger           *slog.Logger
}

type visit struct {
	page        pagecontext.Context
	accumulated time.Duration
	spanStart   time.Time
	spanOpen    bool
}

// Tracker is safe for concurrent use. Sink calls happen outside its lock.
type Tracker struct {
	sink      Sink
	resolver  pagecontext.Resolver
	clock     scheduler.Clock
	sessionID string
	logger    *slog.Logger

	mu         sync.Mutex
	visible    bool
	current    *visit
	lastUnload time.Time
}

// New builds a Tracker. Resolver defaults to the built-in route table and
// Clock to the wall clock.
func New(opts Options) *Tracker {
	if opts.Resolver == nil {
		opts.Resolver = pagecontext.Default()
	}
	if opts.Clock == nil {
		opts.Clock = scheduler.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		sink:      opts.Sink,
		resolver:  opts.Resolver,
		clock:     opts.Clock,
		sessionID: opts.SessionID,
		logger:    opts.Logger.With("component", "pagevisit"),
		visible:   opts.InitiallyVisible,
	}
}

// Navigate ends the current visit with a route_change exit and starts a new
// one for path.
func (t *Tracker) Navigate(path string) {
	now := t.clock.Now()
	page := t.resolver.Resolve(path)

	t.mu.Lock()
	var out []event.Input
	var referrer any
	if t.current != nil {
		referrer = t.current.page.PathTemplate
		if dwell, ok := t.finalizeLocked(now, event.ExitRouteChange); ok {
			out = append(out, dwell)
		}
	}
	out = append(out, event.Input{
		Name: event.PageViewed,
		Properties: map[string]any{
			"pageKey":              page.PageKey,
			"pathTemplate":         page.PathTemplate,
			"sessionId":            t.sessionID,
			"referrerPathTemplate": referrer,
		},
		OccurredAt: now,
	})
	t.current = &visit{page: page}
	if t.visible {
		t.current.spanStart = now
		t.current.spanOpen = true
	}
	t.mu.Unlock()

	t.emit(out)
	t.logger.Debug("page viewed", "page_key", page.PageKey, "path_template", page.PathTemplate)
}

// VisibilityChanged records the document moving to the foreground or the
// background. Backgrounding emits a hidden dwell and forces a keepalive flush.
func (t *Tracker) VisibilityChanged(visible bool) {
	now := t.clock.Now()

	t.mu.Lock()
	t.visible = visible
	if visible {
		if t.current != nil && !t.current.spanOpen {
			t.current.spanStart = now
			t.current.spanOpen = true
		}
		t.mu.Unlock()
		return
	}
	var out []event.Input
	if t.current != nil {
		if dwell, ok := t.finalizeLocked(now, event.ExitHidden); ok {
			out = append(out, dwell)
		}
	}
	t.mu.Unlock()

	t.emit(out)
	t.flushKeepalive()
}

// PageHide handles the pagehide signal.
func (t *Tracker) PageHide() { t.unload() }

// BeforeUnload handles the beforeunload signal.
func (t *Tracker) BeforeUnload() { t.unload() }

func (t *Tracker) unload() {
	now := t.clock.Now()

	t.mu.Lock()
	if !t.lastUnload.IsZero() && now.Sub(t.lastUnload) < UnloadDedupeWindow {
		t.mu.Unlock()
		return
	}
	t.lastUnload = now
	var out []event.Input
	if t.current != nil {
		if dwell, ok := t.finalizeLocked(now, event.ExitUnload); ok {
			out = append(out, dwell)
		}
	}
	t.mu.Unlock()

	t.emit(out)
	t.flushKeepalive()
}

// finalizeLocked banks the open span, resets the visit's accumulated time
// and returns the dwell event when the total is positive.
func (t *Tracker) finalizeLocked(now time.Time, exit string) (event.Input, bool) {
	v := t.current
	if v.spanOpen {
		if elapsed := now.Sub(v.spanStart); elapsed > 0 {
			v.accumulated += elapsed
		}
		v.spanOpen = false
	}
	dwellMs := v.accumulated.Round(time.Millisecond).Milliseconds()
	v.accumulated = 0
	if dwellMs <= 0 {
		return event.Input{}, false
	}
	return event.Input{
		Name: event.PageDwelled,
		Properties: map[string]any{
			"pageKey":      v.page.PageKey,
			"pathTemplate": v.page.PathTemplate,
			"sessionId":    t.sessionID,
			"dwellMs":      dwellMs,
			"exitType":     exit,
		},
		OccurredAt: now,
	}, true
}

func (t *Tracker) emit(events []event.Input) {
	for _, in := range events {
		t.sink.Track(in)
	}
}

func (t *Tracker) flushKeepalive() {
	report := t.sink.Flush(context.Background(), dispatcher.FlushOptions{Keepalive: true})
	t.logger.Debug("keepalive flush", "sent", report.Sent, "requeued", report.Requeued, "skipped", report.Skipped)
}
