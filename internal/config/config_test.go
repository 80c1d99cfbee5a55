package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/regionshm/pkg/worker"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Buffer.Len)
	assert.Equal(t, 10, cfg.Buffer.Regions)
	assert.Equal(t, time.Second, cfg.Supervisor.Tick)
	assert.Equal(t, 130*time.Second, cfg.Supervisor.Ceiling)
	require.Len(t, cfg.Workers, 6)
	assert.Equal(t, "zero-negatives", cfg.Workers[4].Op)
	assert.Equal(t, 49*time.Second, cfg.Workers[4].Lifetime)
	assert.Equal(t, []int{9}, cfg.Workers[4].Regions)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	v := viper.New()
	require.NoError(t, Init(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regionshm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
buffer:
  name: memvec
  len: 40
  regions: 4
supervisor:
  tick: 250ms
  ceiling: 30s
workers:
  - op: D
    cadence: 2s
    pause: 50ms
    lifetime: 10s
    regions: [0, 2]
  - op: reverse
    cadence: 1s
    lifetime: 5s
    regions: [3]
`), 0600))

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "memvec", cfg.Buffer.Name)
	assert.Equal(t, 40, cfg.Buffer.Len)
	assert.Equal(t, int32(-50), cfg.Buffer.FillMin, "unset keys keep their default")
	assert.Equal(t, 250*time.Millisecond, cfg.Supervisor.Tick)
	require.Len(t, cfg.Workers, 2, "configured workers replace the defaults")

	workers, err := cfg.WorkerConfigs()
	require.NoError(t, err)
	assert.Equal(t, worker.Config{
		Index: 1, Op: worker.OpDouble, Cadence: 2 * time.Second, Pause: 50 * time.Millisecond,
		Lifetime: 10 * time.Second, Regions: []int{0, 2},
	}, workers[0])
	assert.Equal(t, 2, workers[1].Index)
	assert.Equal(t, worker.OpReverse, workers[1].Op)
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("REGIONSHM_SUPERVISOR_CEILING", "45s")
	t.Setenv("REGIONSHM_BUFFER_DIR", "/tmp/shm")

	v := viper.New()
	require.NoError(t, Init(v, ""))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Supervisor.Ceiling)
	assert.Equal(t, "/tmp/shm", cfg.Buffer.Dir)
}

func TestInitMissingExplicitFile(t *testing.T) {
	v := viper.New()
	assert.Error(t, Init(v, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("buffer.regions", 7)
	v.Set("workers", []map[string]any{{"op": "median", "cadence": "0s", "lifetime": "1s", "regions": []int{8}}})

	_, err := Load(v)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "%v", err)
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["buffer.len"])
	assert.True(t, fields["workers[0].op"])
	assert.True(t, fields["workers[0].cadence"])
	assert.True(t, fields["workers[0].regions"])
	assert.Contains(t, verrs.Error(), "validation errors")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"fill range", func(c *Config) { c.Buffer.FillMin = 10; c.Buffer.FillMax = -10 }, "buffer.fill_min"},
		{"row width", func(c *Config) { c.Buffer.RowWidth = 0 }, "buffer.row_width"},
		{"nested name", func(c *Config) { c.Buffer.Name = "a/b" }, "buffer.name"},
		{"lock prefix", func(c *Config) { c.Locks.Prefix = "" }, "locks.prefix"},
		{"tick", func(c *Config) { c.Supervisor.Tick = 0 }, "supervisor.tick"},
		{"ceiling", func(c *Config) { c.Supervisor.Ceiling = time.Millisecond }, "supervisor.ceiling"},
		{"pause", func(c *Config) { c.Workers[0].Pause = -time.Second }, "workers[0].pause"},
		{"lifetime", func(c *Config) { c.Workers[2].Lifetime = 0 }, "workers[2].lifetime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}

	cfg := Default()
	cfg.Buffer.Name = "/regionshm"
	assert.Empty(t, cfg.Validate(), "a leading slash is allowed")
}

func TestSupervisorConfig(t *testing.T) {
	cfg := Default()
	sc, err := cfg.SupervisorConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.BufferOptions(), sc.Buffer)
	assert.Equal(t, "regionshm", sc.Locks.Prefix)
	assert.Len(t, sc.Workers, 6)
	assert.Equal(t, 6, sc.Workers[5].Index)
	assert.Equal(t, worker.OpReverse, sc.Workers[5].Op)

	cfg.Workers[0].Op = "median"
	_, err = cfg.SupervisorConfig()
	assert.ErrorIs(t, err, worker.ErrUnknownOp)
}
