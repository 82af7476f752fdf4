// Package telemetry wires the pipeline together. A Client owns the durable
// store, queue, dispatcher, page tracker and connectivity prober, and is the
// only thing a host application needs to hold.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gyaneshwarpardhi/dinetrace/internal/config"
	"github.com/gyaneshwarpardhi/dinetrace/internal/connectivity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/dispatcher"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/identity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
	"github.com/gyaneshwarpardhi/dinetrace/internal/logging"
	"github.com/gyaneshwarpardhi/dinetrace/internal/pagecontext"
	"github.com/gyaneshwarpardhi/dinetrace/internal/pagevisit"
	"github.com/gyaneshwarpardhi/dinetrace/internal/queue"
	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
	"github.com/gyaneshwarpardhi/dinetrace/internal/transport"
)

// Options configures a Client. Only Config is required; the other fields
// override what Config would build.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Level, when set, follows telemetry.debug and logging.level on ApplyConfig.
	Level     *logging.Level
	Scheduler scheduler.Scheduler

	// Durable replaces the store selected by storage.driver. The caller keeps ownership.
	Durable kvstore.Store
	// Session is the per-tab store. Defaults to in-memory.
	Session kvstore.Store
	// Transport replaces the one selected by transport.kind.
	Transport  transport.Transport
	HTTPClient *http.Client
	// Online replaces the prober configured by transport.probe_url.
	Online   connectivity.Signal
	Resolver pagecontext.Resolver
	Report   fault.Reporter

	InitiallyVisible bool
}

// Client is the telemetry composition root.
type Client struct {
	logger *slog.Logger
	level  *logging.Level

	queue      *queue.Queue
	dispatcher *dispatcher.Dispatcher
	pages      *pagevisit.Tracker
	prober     *connectivity.Prober

	anonymousID string
	sessionID   string

	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// New builds a Client from opts. Nothing runs until Start.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("telemetry: config is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report := opts.Report
	if report == nil {
		report = fault.Log(logger)
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.Real{}
	}

	c := &Client{logger: logger.With("component", "telemetry"), level: opts.Level}
	fail := func(err error) (*Client, error) {
		_ = c.close()
		return nil, err
	}

	durable := opts.Durable
	if durable == nil {
		store, err := OpenStore(ctx, cfg.Storage, logger)
		if err != nil {
			return fail(fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err))
		}
		durable = store
		c.closers = append(c.closers, store.Close)
	}
	session := opts.Session
	if session == nil {
		session = kvstore.NewMemory()
	}
	c.anonymousID = identity.Anonymous(ctx, durable, report)
	c.sessionID = identity.Session(ctx, session, report)

	c.queue = queue.New(durable, queue.Options{MaxSize: cfg.Telemetry.MaxQueueSize, Report: report})

	tr := opts.Transport
	if tr == nil {
		built, closeFn, err := OpenTransport(cfg.Transport, opts.HTTPClient)
		if err != nil {
			return fail(fmt.Errorf("open %s transport: %w", cfg.Transport.Kind, err))
		}
		tr = built
		c.closers = append(c.closers, closeFn)
	}

	online := opts.Online
	if online == nil && cfg.Transport.ProbeURL != "" {
		c.prober = connectivity.NewProber(connectivity.ProberOptions{
			URL:       cfg.Transport.ProbeURL,
			Interval:  cfg.Transport.ProbeInterval,
			Client:    opts.HTTPClient,
			Scheduler: sched,
			Logger:    logger.With("component", "connectivity"),
		})
		online = c.prober
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = pagecontext.Default()
		if cfg.Routes.Path != "" {
			table, err := pagecontext.LoadTable(cfg.Routes.Path)
			if err != nil {
				return fail(err)
			}
			resolver = table
		}
	}

	d, err := dispatcher.New(dispatcher.Options{
		Enabled:       cfg.Telemetry.Enabled,
		MaxBatchSize:  cfg.Telemetry.MaxBatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval(),
		AnonymousID:   c.anonymousID,
		Source:        cfg.Telemetry.Source,
		Platform:      cfg.Telemetry.Platform,
		AppEnv:        cfg.Telemetry.AppEnv,
		Queue:         c.queue,
		Transport:     tr,
		Scheduler:     sched,
		Online:        online,
		Logger:        logger,
		Report:        report,
	})
	if err != nil {
		return fail(err)
	}
	c.dispatcher = d

	c.pages = pagevisit.New(pagevisit.Options{
		Sink:             d,
		Resolver:         resolver,
		Clock:            sched,
		SessionID:        c.sessionID,
		InitiallyVisible: opts.InitiallyVisible,
		Logger:           logger,
	})

	if c.level != nil {
		c.level.SetDebug(cfg.Telemetry.Debug)
	}
	c.logger.Info("telemetry client ready",
		"storage", cfg.Storage.Driver,
		"transport", cfg.Transport.Kind,
		"enabled", cfg.Telemetry.Enabled,
		"queued", c.queue.Size(),
	)
	return c, nil
}

// Start begins periodic flushing and connectivity probing.
func (c *Client) Start() {
	c.dispatcher.Start()
	if c.prober != nil {
		c.prober.Start()
	}
}

// Stop halts timers. Queued events stay in the durable store.
func (c *Client) Stop() {
	c.dispatcher.Stop()
	if c.prober != nil {
		c.prober.Stop()
	}
}

// Shutdown stops the client, makes a final keepalive flush and releases
// the store and transport connections it opened.
func (c *Client) Shutdown(ctx context.Context) (dispatcher.FlushReport, error) {
	c.Stop()
	report := c.dispatcher.Flush(ctx, dispatcher.FlushOptions{Keepalive: true})
	c.logger.Info("telemetry client stopped", "sent", report.Sent, "left_in_queue", c.queue.Size())
	return report, c.close()
}

func (c *Client) close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// ApplyConfig applies the live-reloadable settings: the kill switch and
// log verbosity. Everything else needs a new Client.
func (c *Client) ApplyConfig(cfg *config.Config) {
	c.dispatcher.SetEnabled(cfg.Telemetry.Enabled)
	if c.level != nil {
		c.level.SetBase(logging.ParseLevel(cfg.Logging.Level))
		c.level.SetDebug(cfg.Telemetry.Debug)
	}
}

// Watch applies every successful reload from loader.
func (c *Client) Watch(loader *config.Loader) {
	loader.OnChange(c.ApplyConfig)
}

func (c *Client) Track(in event.Input) { c.dispatcher.Track(in) }

func (c *Client) Flush(ctx context.Context) dispatcher.FlushReport {
	return c.dispatcher.Flush(ctx, dispatcher.FlushOptions{})
}

func (c *Client) SetEnabled(enabled bool) { c.dispatcher.SetEnabled(enabled) }

func (c *Client) Navigate(path string)           { c.pages.Navigate(path) }
func (c *Client) VisibilityChanged(visible bool) { c.pages.VisibilityChanged(visible) }
func (c *Client) PageHide()                      { c.pages.PageHide() }
func (c *Client) BeforeUnload()                  { c.pages.BeforeUnload() }

func (c *Client) AnonymousID() string { return c.anonymousID }
func (c *Client) SessionID() string   { return c.sessionID }

// QueueSize is the number of events waiting to be sent.
func (c *Client) QueueSize() int { return c.queue.Size() }

// Dispatcher exposes the flush loop for diagnostics.
func (c *Client) Dispatcher() *dispatcher.Dispatcher { return c.dispatcher }
