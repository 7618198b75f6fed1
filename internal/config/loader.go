package config

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Default returns the built-in fallback configuration.
func Default() *Configuration {
	cfg, err := Parse(bytes.NewReader(defaultDocument))
	if err != nil {
		panic(errors.Wrap(err, "embedded default configuration"))
	}
	return cfg
}

// Parse decodes and validates a YAML configuration document.
func Parse(r io.Reader) (*Configuration, error) {
	var cfg Configuration

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "yaml.Decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseFile reads the configuration stored at path.
func ParseFile(path string) (*Configuration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "os.Stat")
	}
	if info.IsDir() {
		return nil, errors.Errorf("configuration path %s is a directory", path)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "os.Open")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Correct applies the adjustments persistence regions rely on: clustered
// caches fail with an error on nonstop timeouts so the access layer can
// degrade, and unset clustered options get their defaults.
func Correct(cfg *Configuration) *Configuration {
	correctCache(&cfg.DefaultCache)
	for i := range cfg.Caches {
		correctCache(&cfg.Caches[i])
	}
	return cfg
}

func correctCache(c *CacheConfiguration) {
	if c.TransactionalMode == "" {
		c.TransactionalMode = TransactionalOff
	}
	if c.Eternal {
		c.TimeToIdleSeconds = 0
		c.TimeToLiveSeconds = 0
	}
	if c.Clustered == nil {
		return
	}
	if c.Clustered.Consistency == "" {
		c.Clustered.Consistency = ConsistencyStrong
	}
	if c.Clustered.ValueMode == "" {
		c.Clustered.ValueMode = ValueModeSerialization
	}
	if c.Clustered.OrphanEviction && c.Clustered.OrphanEvictionPeriod == 0 {
		c.Clustered.OrphanEvictionPeriod = DefaultOrphanEvictionPeriod
	}
	if nonstop := c.Clustered.Nonstop; nonstop != nil {
		nonstop.TimeoutBehavior = TimeoutBehaviorException
		if nonstop.TimeoutMillis <= 0 {
			nonstop.TimeoutMillis = DefaultNonstopTimeoutMillis
		}
	}
}
