// Package logging builds the zap loggers used by the supervisor and workers.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelEnv overrides the configured level.
	LevelEnv = "REGIONSHM_LOG_LEVEL"
	// DebugModeEnv forces the development encoder when set.
	DebugModeEnv = "REGIONSHM_DEBUG_MODE"
	// OutputEnv overrides the output paths, comma separated.
	OutputEnv = "REGIONSHM_LOG_OUTPUT"
)

// Config defines logger configuration.
type Config struct {
	Level       string   `mapstructure:"level"` // "debug", "info", "warn", "error"
	Development bool     `mapstructure:"development"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// DefaultConfig returns the logger configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

// New creates a logger from cfg after applying the environment overrides.
func New(cfg Config) (*zap.Logger, error) {
	cfg = applyEnv(cfg)
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}

// Environ encodes cfg, environment overrides included, as the variables New
// reads. Worker processes inherit the supervisor's logging this way.
func Environ(cfg Config) []string {
	cfg = applyEnv(cfg)
	env := []string{LevelEnv + "=" + cfg.Level}
	if cfg.Development {
		env = append(env, DebugModeEnv+"=1")
	}
	if len(cfg.OutputPaths) > 0 {
		env = append(env, OutputEnv+"="+strings.Join(cfg.OutputPaths, ","))
	}
	return env
}

// ForWorker names a logger for a worker process. The task adds the worker
// index itself.
func ForWorker(l *zap.Logger, pid int) *zap.Logger {
	return l.Named("worker").With(zap.Int("pid", pid))
}

func applyEnv(cfg Config) Config {
	if v := os.Getenv(LevelEnv); v != "" {
		cfg.Level = v
	}
	if os.Getenv(DebugModeEnv) != "" {
		cfg.Development = true
	}
	if v := os.Getenv(OutputEnv); v != "" {
		cfg.OutputPaths = strings.Split(v, ",")
	}
	return cfg
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
