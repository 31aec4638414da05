package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/c360/streamcompute/codec"
	"github.com/c360/streamcompute/computation"
	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/filter"
)

// Config is the complete application configuration.
type Config struct {
	Version      string                     `json:"version,omitempty" yaml:"version,omitempty"`
	Log          LogConfig                  `json:"log" yaml:"log"`
	Metrics      MetricsConfig              `json:"metrics" yaml:"metrics"`
	NATS         NATSConfig                 `json:"nats" yaml:"nats"`
	Redis        RedisConfig                `json:"redis,omitempty" yaml:"redis,omitempty"`
	Runtime      RuntimeConfig              `json:"runtime" yaml:"runtime"`
	Streams      []StreamConfig             `json:"streams,omitempty" yaml:"streams,omitempty"`
	Codecs       []codec.Descriptor         `json:"codecs,omitempty" yaml:"codecs,omitempty"`
	BlobStores   map[string]BlobStoreConfig `json:"blob_stores,omitempty" yaml:"blob_stores,omitempty"`
	Computations []ComputationConfig        `json:"computations,omitempty" yaml:"computations,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or text
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// NATSConfig defines NATS connection and JetStream log settings.
type NATSConfig struct {
	URL              string   `json:"url" yaml:"url"`
	Username         string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password         string   `json:"password,omitempty" yaml:"password,omitempty"`
	Token            string   `json:"token,omitempty" yaml:"token,omitempty"`
	ClientName       string   `json:"client_name,omitempty" yaml:"client_name,omitempty"`
	MaxReconnects    int      `json:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait    Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	ConnectTimeout   Duration `json:"connect_timeout" yaml:"connect_timeout"`
	CircuitThreshold int      `json:"circuit_threshold" yaml:"circuit_threshold"`
	Prefix           string   `json:"prefix" yaml:"prefix"`
	Replicas         int      `json:"replicas" yaml:"replicas"`
	Storage          string   `json:"storage" yaml:"storage"`
	MaxAge           Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// RedisConfig is used by redis blob stores.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// RuntimeConfig tunes the runners.
type RuntimeConfig struct {
	PollInterval Duration    `json:"poll_interval" yaml:"poll_interval"`
	BatchSize    int         `json:"batch_size" yaml:"batch_size"`
	Retry        RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig is the commit retry policy.
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
}

// StreamConfig declares a physical stream.
type StreamConfig struct {
	Name       string `json:"name" yaml:"name"`
	Partitions int    `json:"partitions" yaml:"partitions"`
}

// BlobStoreConfig declares a store for the external-store filter.
type BlobStoreConfig struct {
	Type   string   `json:"type" yaml:"type"` // memory, redis or nats
	Bucket string   `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	TTL    Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// ComputationConfig declares one computation instance.
type ComputationConfig struct {
	Name       string            `json:"name" yaml:"name"`
	Kind       string            `json:"kind" yaml:"kind"`
	Inputs     []string          `json:"inputs" yaml:"inputs"`
	Outputs    []string          `json:"outputs" yaml:"outputs"`
	Mapping    map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty"`
	Options    map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
	Codec      string            `json:"codec" yaml:"codec"`
	Group      string            `json:"group,omitempty" yaml:"group,omitempty"`
	AutoCommit *bool             `json:"auto_commit,omitempty" yaml:"auto_commit,omitempty"`
	Filters    []filter.Spec     `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Metadata builds the computation metadata.
func (c ComputationConfig) Metadata() computation.Metadata {
	return computation.NewMetadata(c.Name, c.Inputs, c.Outputs).WithMapping(c.Mapping)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Defaults()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.Config(errors.ErrMissingConfig, "SafeConfig", "Update", "config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy through a JSON round trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return Defaults()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Stream returns the declared stream by name.
func (c *Config) Stream(name string) (StreamConfig, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}

// Validate checks cross references between sections. Every failure is a
// configuration error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.Config(errors.ErrInvalidConfig, "Config", "Validate", fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return invalid("log.format %q must be json or text", c.Log.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr is required when metrics are enabled")
	}
	if c.NATS.Prefix != "" && !isValidNATSSubjectPart(c.NATS.Prefix) {
		return invalid("nats.prefix %q is not valid for NATS subjects", c.NATS.Prefix)
	}

	streams := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.Name == "" {
			return invalid("stream name cannot be empty")
		}
		if s.Partitions < 1 {
			return invalid("stream %s: partitions must be at least 1", s.Name)
		}
		if streams[s.Name] {
			return invalid("stream %s declared twice", s.Name)
		}
		streams[s.Name] = true
	}

	codecs := make(map[string]bool, len(c.Codecs))
	for _, d := range c.Codecs {
		if d.Name == "" || d.Factory == "" {
			return invalid("codec entries need a name and a factory")
		}
		codecs[d.Name] = true
	}

	for name, bs := range c.BlobStores {
		switch bs.Type {
		case "memory", "nats":
		case "redis":
			if c.Redis.Addr == "" {
				return invalid("blob store %s: redis.addr is required", name)
			}
		default:
			return invalid("blob store %s: unknown type %q", name, bs.Type)
		}
	}

	names := make(map[string]bool, len(c.Computations))
	for _, comp := range c.Computations {
		if comp.Kind == "" {
			return invalid("computation %s: kind is required", comp.Name)
		}
		if names[comp.Name] {
			return invalid("computation %s declared twice", comp.Name)
		}
		names[comp.Name] = true
		if !codecs[comp.Codec] {
			return errors.Config(errors.ErrMissingConfig, "Config", "Validate",
				fmt.Sprintf("computation %s: codec %q is not declared", comp.Name, comp.Codec))
		}
		md := comp.Metadata()
		if err := md.Validate(); err != nil {
			return err
		}
		for _, s := range append(md.PhysicalInputs(), md.PhysicalOutputs()...) {
			if !streams[s] {
				return errors.Config(errors.ErrUndeclaredStream, "Config", "Validate",
					fmt.Sprintf("computation %s: stream %s is not declared", comp.Name, s))
			}
		}
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// String returns a JSON representation with secrets masked.
func (c *Config) String() string {
	clone := c.Clone()
	for _, s := range []*string{&clone.NATS.Password, &clone.NATS.Token, &clone.Redis.Password} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}
