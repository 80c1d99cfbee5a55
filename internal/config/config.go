package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/srediag/regionshm/internal/logging"
	"github.com/srediag/regionshm/pkg/regionlock"
	"github.com/srediag/regionshm/pkg/shm"
	"github.com/srediag/regionshm/pkg/supervisor"
	"github.com/srediag/regionshm/pkg/worker"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
const EnvPrefix = "REGIONSHM"

// Config represents the complete regionshm configuration. It is read once at
// startup; the topology does not change afterwards.
type Config struct {
	Buffer     BufferConfig     `mapstructure:"buffer"`
	Locks      LocksConfig      `mapstructure:"locks"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Logging    logging.Config   `mapstructure:"logging"`
	Workers    []WorkerConfig   `mapstructure:"workers"`
}

// BufferConfig describes the shared buffer.
type BufferConfig struct {
	Name    string `mapstructure:"name"`
	Dir     string `mapstructure:"dir"`
	Len     int    `mapstructure:"len"`
	Regions int    `mapstructure:"regions"`
	// FillMin and FillMax bound the random initial values.
	FillMin int32 `mapstructure:"fill_min"`
	FillMax int32 `mapstructure:"fill_max"`
	// RowWidth is the number of values per dump row.
	RowWidth int `mapstructure:"row_width"`
}

// LocksConfig describes where the region locks live.
type LocksConfig struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// SupervisorConfig controls supervision.
type SupervisorConfig struct {
	Tick    time.Duration `mapstructure:"tick"`
	Ceiling time.Duration `mapstructure:"ceiling"`
	// MetricsAddr serves /metrics, /live and /ready when not empty.
	MetricsAddr      string `mapstructure:"metrics_addr"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// WorkerConfig is one worker as written in the config file.
type WorkerConfig struct {
	Op       string        `mapstructure:"op"`
	Cadence  time.Duration `mapstructure:"cadence"`
	Pause    time.Duration `mapstructure:"pause"`
	Lifetime time.Duration `mapstructure:"lifetime"`
	Regions  []int         `mapstructure:"regions"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		Buffer: BufferConfig{
			Name:     shm.DefaultName,
			Dir:      "/dev/shm",
			Len:      100,
			Regions:  10,
			FillMin:  supervisor.DefaultFillMin,
			FillMax:  supervisor.DefaultFillMax,
			RowWidth: shm.DefaultRowWidth,
		},
		Locks: LocksConfig{
			Dir:    regionlock.DefaultDir,
			Prefix: regionlock.DefaultPrefix,
		},
		Supervisor: SupervisorConfig{
			Tick:             supervisor.DefaultTick,
			Ceiling:          supervisor.DefaultCeiling,
			MetricsNamespace: "regionshm",
		},
		Logging: logging.DefaultConfig(),
		Workers: DefaultWorkers(),
	}
}

// DefaultWorkers returns the fixed six-worker topology.
func DefaultWorkers() []WorkerConfig {
	return []WorkerConfig{
		{Op: "max", Cadence: 3 * time.Second, Pause: 80 * time.Millisecond, Lifetime: 60 * time.Second, Regions: []int{0, 3, 6}},
		{Op: "average", Cadence: 5 * time.Second, Pause: 120 * time.Millisecond, Lifetime: 80 * time.Second, Regions: []int{1, 4, 7}},
		{Op: "sort", Cadence: 10 * time.Second, Pause: 300 * time.Millisecond, Lifetime: 100 * time.Second, Regions: []int{2, 5, 8}},
		{Op: "double", Cadence: 8 * time.Second, Pause: 200 * time.Millisecond, Lifetime: 120 * time.Second, Regions: []int{0, 3, 6}},
		{Op: "zero-negatives", Cadence: 7 * time.Second, Pause: 250 * time.Millisecond, Lifetime: 49 * time.Second, Regions: []int{9}},
		{Op: "reverse", Cadence: 12 * time.Second, Pause: 400 * time.Millisecond, Lifetime: 60 * time.Second, Regions: []int{2, 5, 8}},
	}
}

// SetDefaults registers every scalar default on v. Workers have no viper
// default so that a configured list replaces the default one instead of
// being merged into it.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("buffer.name", defaults.Buffer.Name)
	v.SetDefault("buffer.dir", defaults.Buffer.Dir)
	v.SetDefault("buffer.len", defaults.Buffer.Len)
	v.SetDefault("buffer.regions", defaults.Buffer.Regions)
	v.SetDefault("buffer.fill_min", defaults.Buffer.FillMin)
	v.SetDefault("buffer.fill_max", defaults.Buffer.FillMax)
	v.SetDefault("buffer.row_width", defaults.Buffer.RowWidth)

	v.SetDefault("locks.dir", defaults.Locks.Dir)
	v.SetDefault("locks.prefix", defaults.Locks.Prefix)

	v.SetDefault("supervisor.tick", defaults.Supervisor.Tick)
	v.SetDefault("supervisor.ceiling", defaults.Supervisor.Ceiling)
	v.SetDefault("supervisor.metrics_addr", defaults.Supervisor.MetricsAddr)
	v.SetDefault("supervisor.metrics_namespace", defaults.Supervisor.MetricsNamespace)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.development", defaults.Logging.Development)
	v.SetDefault("logging.output_paths", defaults.Logging.OutputPaths)
}

// Init points v at the config file, or at the default search path when
// file is empty, and enables environment overrides. A missing config file
// is not an error.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("regionshm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Workers) == 0 {
		cfg.Workers = DefaultWorkers()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "regionshm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".regionshm"
	}
	return filepath.Join(home, ".config", "regionshm")
}

// WorkerConfigs converts the configured workers, numbering them from 1.
func (c *Config) WorkerConfigs() ([]worker.Config, error) {
	out := make([]worker.Config, len(c.Workers))
	for i, w := range c.Workers {
		op, err := worker.ParseOp(w.Op)
		if err != nil {
			return nil, fmt.Errorf("workers[%d]: %w", i, err)
		}
		out[i] = worker.Config{
			Index:    i + 1,
			Op:       op,
			Cadence:  w.Cadence,
			Pause:    w.Pause,
			Lifetime: w.Lifetime,
			Regions:  append([]int(nil), w.Regions...),
		}
	}
	return out, nil
}

// SupervisorConfig builds the supervisor's view of the configuration.
func (c *Config) SupervisorConfig() (supervisor.Config, error) {
	workers, err := c.WorkerConfigs()
	if err != nil {
		return supervisor.Config{}, err
	}
	return supervisor.Config{
		Buffer:  c.BufferOptions(),
		Locks:   c.LockOptions(),
		Workers: workers,
		Tick:    c.Supervisor.Tick,
		Ceiling: c.Supervisor.Ceiling,
		FillMin: c.Buffer.FillMin,
		FillMax: c.Buffer.FillMax,
	}, nil
}

// BufferOptions names the shared buffer.
func (c *Config) BufferOptions() shm.Options {
	return shm.Options{Name: c.Buffer.Name, Dir: c.Buffer.Dir, Len: c.Buffer.Len, Regions: c.Buffer.Regions}
}

// LockOptions names the region locks.
func (c *Config) LockOptions() regionlock.Options {
	return regionlock.Options{Dir: c.Locks.Dir, Prefix: c.Locks.Prefix}
}
