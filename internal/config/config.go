// Package config loads the heap configuration of the Orizon runtime from a
// TOML file such as:
//
//	schema = "1.0"
//
//	[heap]
//	gc_threshold = 10000
//	max_heap_size = 0
//	visit_cap = 1048576
//	leak_passes = 16
//	auto_collect = true
//	track_types = false
//	limit_to_system = false
//
//	[observe]
//	metrics_addr = "127.0.0.1:9464"
//	http3_addr = ""
package config

import (
	"errors"
	"fmt"
	"os"

	semver "github.com/Masterminds/semver/v3"
	"github.com/BurntSushi/toml"

	"github.com/orizon-lang/orizon-rc/internal/allocator"
	"github.com/orizon-lang/orizon-rc/internal/runtime/rc"
)

// SchemaVersion is written by Default and SaveFile.
const SchemaVersion = "1.0"

// supportedSchemas is the range of config schema versions this build reads.
const supportedSchemas = ">=1.0, <2.0"

// Config is the host-facing configuration of a runtime.
type Config struct {
	Schema  string  `toml:"schema"`
	Heap    Heap    `toml:"heap"`
	Observe Observe `toml:"observe"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// Heap configures the collector and tracker.
type Heap struct {
	GCThreshold   int    `toml:"gc_threshold"`
	MaxHeapSize   uint64 `toml:"max_heap_size"`
	VisitCap      int    `toml:"visit_cap"`
	LeakPasses    int    `toml:"leak_passes"`
	AutoCollect   bool   `toml:"auto_collect"`
	TrackTypes    bool   `toml:"track_types"`
	LimitToSystem bool   `toml:"limit_to_system"`
}

// Observe configures the observability endpoints. Empty addresses disable
// the listener.
type Observe struct {
	MetricsAddr string `toml:"metrics_addr"`
	HTTP3Addr   string `toml:"http3_addr"`
	CertFile    string `toml:"cert_file"`
	KeyFile     string `toml:"key_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Schema: SchemaVersion,
		Heap: Heap{
			GCThreshold: rc.DefaultThreshold,
			VisitCap:    rc.DefaultVisitCap,
			LeakPasses:  rc.DefaultLeakPasses,
			AutoCollect: true,
		},
	}
}

// Load reads a configuration file. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes TOML data on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the schema version and value ranges.
func (c Config) Validate() error {
	if c.Schema == "" {
		return errors.New("missing schema version")
	}
	v, err := semver.NewVersion(c.Schema)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", c.Schema, err)
	}
	constraint, err := semver.NewConstraint(supportedSchemas)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("unsupported schema version %s (want %s)", c.Schema, supportedSchemas)
	}

	switch {
	case c.Heap.GCThreshold < 0:
		return fmt.Errorf("gc_threshold must not be negative: %d", c.Heap.GCThreshold)
	case c.Heap.VisitCap < 0:
		return fmt.Errorf("visit_cap must not be negative: %d", c.Heap.VisitCap)
	case c.Heap.LeakPasses < 0:
		return fmt.Errorf("leak_passes must not be negative: %d", c.Heap.LeakPasses)
	}
	if (c.Observe.CertFile == "") != (c.Observe.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}

// RC converts the heap section into collector tunables. With
// limit_to_system the heap limit is clamped to the host memory limit.
func (c Config) RC() rc.Config {
	limit := c.Heap.MaxHeapSize
	if c.Heap.LimitToSystem {
		limit = allocator.ClampLimit(limit)
	}
	return rc.Config{
		Threshold:   c.Heap.GCThreshold,
		MaxHeapSize: limit,
		VisitCap:    c.Heap.VisitCap,
		LeakPasses:  c.Heap.LeakPasses,
	}
}

// SaveFile writes the configuration as TOML.
func (c Config) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer f.Close()

	if c.Schema == "" {
		c.Schema = SchemaVersion
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return nil
}
