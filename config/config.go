// Package config loads broker settings from YAML files and STRIX_ prefixed
// environment variables and applies them to a running broker.
//
//	reentrant: false
//	default_stage: default
//	stage:
//	  io:
//	    topics: ["files/*", "net/*"]
//	    workers: 8
//	    queue: 256
//	  ui:
//	    topics: ["ui/*"]
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/internal/executor"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override file settings.
const EnvPrefix = "STRIX"

// Config is the broker configuration.
type Config struct {
	// Reentrant is the default reentrancy of registrations that do not
	// declare their own.
	Reentrant bool `mapstructure:"reentrant"`
	// DefaultStage is the stage of topics without a mapping.
	DefaultStage string `mapstructure:"default_stage"`
	// Stages maps a stage name to its topics and worker pool.
	Stages map[string]Stage `mapstructure:"stage"`
}

// Stage describes one stage. A stage with workers runs on a pool owned by
// the broker; a stage without workers only routes topics and expects an
// executor bound by the application.
type Stage struct {
	Topics  []string `mapstructure:"topics"`
	Workers int      `mapstructure:"workers"`
	Queue   int      `mapstructure:"queue"`
}

// New returns a viper instance set up for YAML files and STRIX_ environment
// overrides, e.g. STRIX_DEFAULT_STAGE.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("reentrant", false)
	v.SetDefault("default_stage", strix.DefaultStage)
	return v
}

// ReadFile returns New with the config file at path read in.
func ReadFile(path string) (*viper.Viper, error) {
	v := New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem of the configuration at once.
func (c *Config) Validate() error {
	var err error
	if c.DefaultStage == "" {
		err = errors.Join(err, errors.New("default_stage is required"))
	}

	owner := make(map[string]string)
	for _, name := range slices.Sorted(maps.Keys(c.Stages)) {
		st := c.Stages[name]
		if name == "" {
			err = errors.Join(err, errors.New("stage name is required"))
		}
		if st.Workers < 0 {
			err = errors.Join(err, fmt.Errorf("stage %s: workers must not be negative", name))
		}
		if st.Queue < 0 {
			err = errors.Join(err, fmt.Errorf("stage %s: queue must not be negative", name))
		}
		for _, p := range st.Topics {
			if !strix.ValidPattern(p) {
				err = errors.Join(err, fmt.Errorf("stage %s: invalid topic pattern %q", name, p))
				continue
			}
			if prev, ok := owner[p]; ok && prev != name {
				err = errors.Join(err, fmt.Errorf("topic pattern %q is mapped to stages %s and %s", p, prev, name))
				continue
			}
			owner[p] = name
		}
	}
	return err
}

// Apply configures b: the default reentrancy and stage, the complete stage
// mapping table, and a broker owned pool for every stage with workers. Pools
// are started before any topic is routed to them, and pools the broker owns
// for stages no longer declared with workers are stopped once no topic routes
// to them.
func (c *Config) Apply(ctx context.Context, b *strix.Broker) error {
	if b == nil {
		return strix.ErrNotInitialized
	}

	var err error
	for _, name := range slices.Sorted(maps.Keys(c.Stages)) {
		st := c.Stages[name]
		if st.Workers <= 0 {
			continue
		}
		options := []opts.Option[executor.Pool]{executor.Workers(st.Workers)}
		if st.Queue > 0 {
			options = append(options, executor.QueueSize(st.Queue))
		}
		if serr := b.StartStage(ctx, name, options...); serr != nil {
			err = errors.Join(err, serr)
		}
	}

	b.SetDefaultReentrant(c.Reentrant)
	b.SetDefaultStage(c.DefaultStage)

	mappings := make(map[string][]string, len(c.Stages))
	for name, st := range c.Stages {
		mappings[name] = st.Topics
	}
	if rejected := b.ReplaceStageMappings(mappings); len(rejected) > 0 {
		err = errors.Join(err, fmt.Errorf("invalid topic patterns: %s", strings.Join(rejected, ", ")))
	}

	for _, name := range b.OwnedStages() {
		if st, ok := c.Stages[name]; ok && st.Workers > 0 {
			continue
		}
		if serr := b.StopStage(ctx, name); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}

// Watch re-applies the configuration to b whenever the file behind v
// changes. A change that fails to load keeps the previous settings.
func Watch(ctx context.Context, v *viper.Viper, b *strix.Broker, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slogx.LoggerName("strix.config"))

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			logger.WarnContext(ctx, "ignoring invalid config change", slog.String("file", e.Name), slogx.Error(err))
			return
		}
		if err := cfg.Apply(ctx, b); err != nil {
			logger.WarnContext(ctx, "config change applied with errors", slog.String("file", e.Name), slogx.Error(err))
			return
		}
		logger.InfoContext(ctx, "config reloaded", slog.String("file", e.Name))
	})
	v.WatchConfig()
}
