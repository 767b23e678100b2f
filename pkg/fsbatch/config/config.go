// Package config loads fsbatch settings from embedded defaults, an optional
// TOML file and FSBATCH_ environment variables.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/logging"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "FSBATCH_"

// XDGDir selects the XDG state directory as snapshot spool.
const XDGDir = "xdg"

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Config is the full fsbatch configuration.
type Config struct {
	Execution Execution `koanf:"execution"`
	Revert    Revert    `koanf:"revert"`
	Snapshots Snapshots `koanf:"snapshots"`
	Log       Log       `koanf:"log"`

	// Source is the config file that was loaded, if any.
	Source string `koanf:"-"`
}

// Execution holds execution settings.
type Execution struct {
	Policy string `koanf:"policy"`
	// ResolvePrerequisites creates missing parent directories.
	ResolvePrerequisites bool `koanf:"resolve_prerequisites"`
}

// Revert holds revert settings.
type Revert struct {
	Policy string `koanf:"policy"`
}

// Snapshots controls capture of deleted and overwritten content.
type Snapshots struct {
	Enabled bool   `koanf:"enabled"`
	MaxMB   int    `koanf:"max_mb"`
	Dir     string `koanf:"dir"`
}

// Log holds logging settings.
type Log struct {
	Level string `koanf:"level"`
}

// DefaultPath returns $XDG_CONFIG_HOME/fsbatch/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "fsbatch", "config.toml")
}

// Load reads the configuration. An explicit path must exist; when path is
// empty the default location is used if present.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	source := ""
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		source = path
	} else if p := DefaultPath(); fileExists(p) {
		source = p
	}
	if source != "" {
		if err := k.Load(file.Provider(source), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", source, err)
		}
	}

	// 3. Environment, FSBATCH_SNAPSHOTS_MAX_MB -> snapshots.max_mb
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Unmarshal
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	if _, err := core.ParsePolicy(c.Execution.Policy); err != nil {
		return fmt.Errorf("execution.policy: %w", err)
	}
	if c.Revert.Policy != "" {
		if _, err := core.ParsePolicy(c.Revert.Policy); err != nil {
			return fmt.Errorf("revert.policy: %w", err)
		}
	}
	if c.Snapshots.MaxMB < 0 {
		return core.Newf(core.KindInvalidOperation, "snapshots.max_mb must not be negative, got %d", c.Snapshots.MaxMB)
	}
	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LogLevel returns the configured level, falling back to warn.
func (c *Config) LogLevel() zerolog.Level {
	level, err := logging.LevelFromString(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.WarnLevel
	}
	return level
}

// Store builds the snapshot store selected by snapshots.dir.
func (c *Config) Store() (snapshot.Store, error) {
	switch c.Snapshots.Dir {
	case "":
		return snapshot.NewMemoryStore(), nil
	case XDGDir:
		return snapshot.NewDirStore(snapshot.DefaultDir())
	default:
		return snapshot.NewDirStore(c.Snapshots.Dir)
	}
}

// Options converts the configuration into execution options.
func (c *Config) Options() ([]execution.Option, error) {
	policy, err := core.ParsePolicy(c.Execution.Policy)
	if err != nil {
		return nil, err
	}
	opts := []execution.Option{
		execution.WithPolicy(policy),
		execution.WithSnapshots(c.Snapshots.Enabled),
		execution.WithResolvePrerequisites(c.Execution.ResolvePrerequisites),
		execution.WithMaxSnapshotMB(c.Snapshots.MaxMB),
	}
	if c.Revert.Policy != "" {
		rp, err := core.ParsePolicy(c.Revert.Policy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, execution.WithRevertPolicy(rp))
	}
	if c.Snapshots.Enabled {
		store, err := c.Store()
		if err != nil {
			return nil, err
		}
		opts = append(opts, execution.WithStore(store))
	}
	return opts, nil
}
