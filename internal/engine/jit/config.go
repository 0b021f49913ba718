package jit

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/eclipse-openj9/openj9-omr-sub070/internal/engine/jit/backend"
)

// Size is a number of bytes. In YAML it is either an integer or a human readable
// size such as "64MiB".
type Size int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := units.RAMInBytes(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid size %q", value.Line, value.Value)
	}
	*s = Size(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Size) MarshalYAML() (any, error) {
	return units.BytesSize(float64(s)), nil
}

// String implements fmt.Stringer.
func (s Size) String() string {
	return units.HumanSize(float64(s))
}

// Config configures an Engine.
type Config struct {
	// Arch is the instruction set the code is generated for.
	Arch string `yaml:"arch"`
	// AOT generates relocatable code and caches it in CacheDir.
	AOT bool `yaml:"aot"`
	// CacheDir is the directory of the AOT artifact cache. Empty disables the cache.
	CacheDir string `yaml:"cache_dir"`
	// Workers bounds the number of concurrent compilations.
	Workers int `yaml:"workers"`

	MaxSpillSlots       int   `yaml:"max_spill_slots"`
	MaxEstimationPasses int   `yaml:"max_estimation_passes"`
	VerifyAssignment    bool  `yaml:"verify_assignment"`
	StackLimitOffset    int64 `yaml:"stack_limit_offset"`
	// ArenaLimit bounds the memory of one compilation. Zero disables the limit.
	ArenaLimit Size `yaml:"arena_limit"`

	CodeCacheBase uint64 `yaml:"code_cache_base"`
	CodeCacheSize Size   `yaml:"code_cache_size"`
	// SegmentSize is the part of the code cache reserved by one compilation.
	SegmentSize Size `yaml:"segment_size"`

	TrampolineBase  uint64 `yaml:"trampoline_base"`
	TrampolineSlots int    `yaml:"trampoline_slots"`
}

// DefaultConfig returns the Config used for the fields missing from a configuration file.
func DefaultConfig() Config {
	opts := backend.DefaultOptions()
	return Config{
		Arch:                ArchPPC64,
		Workers:             4,
		MaxSpillSlots:       opts.MaxSpillSlots,
		MaxEstimationPasses: opts.MaxEstimationPasses,
		StackLimitOffset:    opts.StackLimitOffset,
		ArenaLimit:          Size(opts.ArenaLimit),
		CodeCacheBase:       0x10000000,
		CodeCacheSize:       64 * units.MiB,
		SegmentSize:         Size(opts.SegmentSize),
		TrampolineBase:      0x0fff0000,
		TrampolineSlots:     1024,
	}
}

// LoadConfig reads the YAML configuration file at path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML configuration over DefaultConfig and validates it.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns every problem of the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if _, ok := arches[c.Arch]; !ok {
		fail("unknown arch %q", c.Arch)
	}
	if c.Workers < 1 {
		fail("workers must be positive, got %d", c.Workers)
	}
	if c.MaxSpillSlots < 0 {
		fail("max_spill_slots must not be negative, got %d", c.MaxSpillSlots)
	}
	if c.MaxEstimationPasses < 1 {
		fail("max_estimation_passes must be positive, got %d", c.MaxEstimationPasses)
	}
	if c.ArenaLimit < 0 {
		fail("arena_limit must not be negative, got %d", c.ArenaLimit)
	}
	if c.CodeCacheBase%16 != 0 {
		fail("code_cache_base %#x is not 16-byte aligned", c.CodeCacheBase)
	}
	if c.SegmentSize <= 0 || c.SegmentSize%16 != 0 {
		fail("segment_size must be a positive multiple of 16, got %d", c.SegmentSize)
	}
	if c.CodeCacheSize < c.SegmentSize {
		fail("code_cache_size %s cannot hold a segment of %s", c.CodeCacheSize, c.SegmentSize)
	}
	if c.TrampolineSlots < 0 {
		fail("trampoline_slots must not be negative, got %d", c.TrampolineSlots)
	}
	return result.ErrorOrNil()
}

// Options returns the backend options of one compilation.
func (c *Config) Options() backend.Options {
	return backend.Options{
		AOT:                 c.AOT,
		MaxSpillSlots:       c.MaxSpillSlots,
		MaxEstimationPasses: c.MaxEstimationPasses,
		VerifyAssignment:    c.VerifyAssignment,
		StackLimitOffset:    c.StackLimitOffset,
		SegmentSize:         uint64(c.SegmentSize),
		ArenaLimit:          int64(c.ArenaLimit),
	}
}
