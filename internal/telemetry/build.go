package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"github.com/gyaneshwarpardhi/dinetrace/internal/config"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
	"github.com/gyaneshwarpardhi/dinetrace/internal/transport"
)

// OpenStore opens the durable store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConf, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return kvstore.NewMemory(), nil
	case "sqlite":
		s, err := kvstore.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		r, err := kvstore.OpenRedis(ctx, cfg.RedisURL, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "badger":
		b, err := kvstore.OpenBadger(kvstore.BadgerConfig{Path: cfg.Path, Logger: logger.With("component", "badger")})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenTransport builds the transport selected by cfg.Kind. The returned
// close function releases any connection it opened.
func OpenTransport(cfg config.TransportConf, client *http.Client) (transport.Transport, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", "http":
		if client == nil {
			// The jar carries session cookies the way a browser sends credentials.
			jar, err := cookiejar.New(nil)
			if err != nil {
				return nil, nil, fmt.Errorf("cookie jar: %w", err)
			}
			client = &http.Client{Timeout: cfg.Timeout, Jar: jar}
		}
		return transport.NewHTTP(transport.HTTPOptions{
			Endpoint: cfg.Endpoint,
			Client:   client,
			Token:    transport.StaticToken(cfg.AccessToken),
			Timeout:  cfg.Timeout,
		}), noop, nil
	case "nats":
		t, nc, err := transport.DialNATS(cfg.NATSURL, cfg.NATSSubject, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return t, nc.Drain, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
