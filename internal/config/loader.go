package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DINETRACE_TELEMETRY_ENABLED.
const EnvPrefix = "DINETRACE"

// MinFlushIntervalMs is the floor applied to telemetry.flush_interval_ms.
const MinFlushIntervalMs = 1000

func setDefaults(v *viper.Viper) {
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.debug", false)
	v.SetDefault("telemetry.flush_interval_ms", 10000)
	v.SetDefault("telemetry.max_batch_size", 20)
	v.SetDefault("telemetry.max_queue_size", 500)
	v.SetDefault("telemetry.source", "web")
	v.SetDefault("telemetry.platform", "web")
	v.SetDefault("telemetry.app_env", "development")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "dinetrace.db")
	v.SetDefault("storage.redis_url", "redis://localhost:6379/0")
	v.SetDefault("storage.namespace", "dinetrace")

	v.SetDefault("transport.kind", "http")
	v.SetDefault("transport.endpoint", "http://127.0.0.1:8123/v1/telemetry/events")
	v.SetDefault("transport.access_token", "")
	v.SetDefault("transport.timeout", "10s")
	v.SetDefault("transport.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("transport.nats_subject", "dinetrace.events")
	v.SetDefault("transport.probe_url", "")
	v.SetDefault("transport.probe_interval", "15s")

	v.SetDefault("collector.addr", "127.0.0.1:8123")
	v.SetDefault("collector.database_path", "collector.db")
	v.SetDefault("collector.rate_limit", 50)
	v.SetDefault("collector.burst", 100)
	v.SetDefault("collector.token", "")
	v.SetDefault("collector.max_body_bytes", 1<<20)

	v.SetDefault("routes.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load reads configuration from path (optional), environment and defaults,
// then validates it. With an empty path it looks for dinetrace.yaml in the
// working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dinetrace")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Telemetry.FlushIntervalMs < MinFlushIntervalMs {
		cfg.Telemetry.FlushIntervalMs = MinFlushIntervalMs
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Loader holds the current configuration and hot-reloads it when the file
// changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{path: path, logger: logger.With("component", "config")}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the watched file, or "" when running on env and defaults.
func (l *Loader) Path() string { return l.path }

// Config returns the latest configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a goroutine that reloads on file changes. The parent directory
// is watched so editors that replace the file by rename are seen. Call the
// returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return func() {}, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	target := filepath.Clean(l.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", target, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("config reload failed, keeping previous config", "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read. On error the previous config stays.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	l.logger.Info("config reloaded", "path", l.path)
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}
