package config

import "time"

// Config is the full dinetrace configuration. Keys map to YAML paths and to
// DINETRACE_* environment variables with dots replaced by underscores.
type Config struct {
	Telemetry TelemetryConf `mapstructure:"telemetry"`
	Storage   StorageConf   `mapstructure:"storage"`
	Transport TransportConf `mapstructure:"transport"`
	Collector CollectorConf `mapstructure:"collector"`
	Routes    RoutesConf    `mapstructure:"routes"`
	Logging   LoggingConf   `mapstructure:"logging"`
}

// TelemetryConf holds the client pipeline options. Enabled and Debug are
// applied live on reload.
type TelemetryConf struct {
	Enabled         bool   `mapstructure:"enabled"`
	Debug           bool   `mapstructure:"debug"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	MaxBatchSize    int    `mapstructure:"max_batch_size"`
	MaxQueueSize    int    `mapstructure:"max_queue_size"`
	Source          string `mapstructure:"source"`
	Platform        string `mapstructure:"platform"`
	AppEnv          string `mapstructure:"app_env"`
}

// FlushInterval returns the configured interval as a Duration.
func (t TelemetryConf) FlushInterval() time.Duration {
	return time.Duration(t.FlushIntervalMs) * time.Millisecond
}

// StorageConf selects the durable key-value backend for the queue and identity.
type StorageConf struct {
	Driver    string `mapstructure:"driver"` // memory | sqlite | redis | badger
	Path      string `mapstructure:"path"`
	RedisURL  string `mapstructure:"redis_url"`
	Namespace string `mapstructure:"namespace"`
}

// TransportConf selects how batches leave the client.
type TransportConf struct {
	Kind        string        `mapstructure:"kind"` // http | nats
	Endpoint    string        `mapstructure:"endpoint"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	NATSURL     string        `mapstructure:"nats_url"`
	NATSSubject string        `mapstructure:"nats_subject"`
	// ProbeURL, when set, is polled to detect reconnects.
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// CollectorConf configures the ingestion server.
type CollectorConf struct {
	Addr         string  `mapstructure:"addr"`
	DatabasePath string  `mapstructure:"database_path"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	Burst        int     `mapstructure:"burst"`
	Token        string  `mapstructure:"token"`
	MaxBodyBytes int64   `mapstructure:"max_body_bytes"`
}

// RoutesConf points at an optional YAML route table. Empty uses the built-in one.
type RoutesConf struct {
	Path string `mapstructure:"path"`
}

type LoggingConf struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
