package config

import (
	"fmt"
	"strings"
)

var (
	storageDrivers = map[string]bool{"memory": true, "sqlite": true, "redis": true, "badger": true}
	transportKinds = map[string]bool{"http": true, "nats": true}
	logFormats     = map[string]bool{"text": true, "json": true}
)

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Telemetry.MaxBatchSize <= 0 {
		errs = append(errs, "telemetry.max_batch_size must be positive")
	}
	if cfg.Telemetry.MaxQueueSize <= 0 {
		errs = append(errs, "telemetry.max_queue_size must be positive")
	}

	if !storageDrivers[cfg.Storage.Driver] {
		errs = append(errs, fmt.Sprintf("storage.driver %q is not one of memory, sqlite, redis, badger", cfg.Storage.Driver))
	}
	switch cfg.Storage.Driver {
	case "sqlite", "badger":
		if cfg.Storage.Path == "" {
			errs = append(errs, fmt.Sprintf("storage.path is required for driver %s", cfg.Storage.Driver))
		}
	case "redis":
		if cfg.Storage.RedisURL == "" {
			errs = append(errs, "storage.redis_url is required for driver redis")
		}
	}

	if !transportKinds[cfg.Transport.Kind] {
		errs = append(errs, fmt.Sprintf("transport.kind %q is not one of http, nats", cfg.Transport.Kind))
	}
	switch cfg.Transport.Kind {
	case "http":
		if cfg.Transport.Endpoint == "" {
			errs = append(errs, "transport.endpoint is required for kind http")
		}
	case "nats":
		if cfg.Transport.NATSURL == "" || cfg.Transport.NATSSubject == "" {
			errs = append(errs, "transport.nats_url and transport.nats_subject are required for kind nats")
		}
	}
	if cfg.Transport.Timeout <= 0 {
		errs = append(errs, "transport.timeout must be positive")
	}

	if cfg.Collector.RateLimit <= 0 || cfg.Collector.Burst <= 0 {
		errs = append(errs, "collector.rate_limit and collector.burst must be positive")
	}
	if cfg.Collector.MaxBodyBytes <= 0 {
		errs = append(errs, "collector.max_body_bytes must be positive")
	}

	if !logFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of text, json", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
