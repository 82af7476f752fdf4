// Package connectivity provides the "back online" signal the dispatcher
// listens to for an immediate flush on reconnect.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
)

// Signal delivers a callback each time the host comes back online.
type Signal interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Notifier is a Signal fired by the host.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewNotifier returns a Notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func())}
}

func (n *Notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Notify runs every subscriber on the calling goroutine.
func (n *Notifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ProberOptions configures a Prober.
type ProberOptions struct {
	URL       string
	Interval  time.Duration
	Client    *http.Client
	Scheduler scheduler.Scheduler
	Logger    *slog.Logger
}

// Prober polls a health URL and notifies subscribers on each
// offline-to-online transition.
type Prober struct {
	*Notifier
	url      string
	interval time.Duration
	client   *http.Client
	sched    scheduler.Scheduler
	logger   *slog.Logger

	mu     sync.Mutex
	online bool
	timer  scheduler.Timer
}

// NewProber builds a Prober. It assumes the host starts online.
func NewProber(opts ProberOptions) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Prober{
		Notifier: NewNotifier(),
		url:      opts.URL,
		interval: opts.Interval,
		client:   opts.Client,
		sched:    opts.Scheduler,
		logger:   opts.Logger,
		online:   true,
	}
}

// Start begins periodic probing. Calling Start again restarts the timer.
func (p *Prober) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.sched.Every(p.interval, func() { p.Probe(context.Background()) })
}

// Stop halts probing.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Online reports the last observed state.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Probe checks the URL once and returns whether it is reachable. Any
// response below 500 counts as reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	up := p.check(ctx)

	p.mu.Lock()
	wasOnline := p.online
	p.online = up
	p.mu.Unlock()

	if up && !wasOnline {
		p.logger.Info("connectivity restored", "url", p.url)
		p.Notify()
	} else if !up && wasOnline {
		p.logger.Warn("connectivity lost", "url", p.url)
	}
	return up
}

func (p *Prober) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
