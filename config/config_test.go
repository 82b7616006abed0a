package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-array/sharedlog"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{"REDIS_URI", "FOLDY_DATA_DIR", "FOLDY_WORKERS"} {
		if v, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, v) })
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "foldy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, sharedlog.Legacy, cfg.LogFormat)
	assert.Equal(t, "folded_", cfg.Scheme.StructurePrefix)
	assert.Equal(t, "pTM_Score", cfg.Scores.PTM)
	assert.Equal(t, BackendSlurm, cfg.Scheduler.Backend)
	assert.Equal(t, "", cfg.Redis.URI)
	p, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, "htc", p.Partition)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data_dir: /scratch/data
workers: 12
log_format: jsonl
scheme:
  structure_prefix: esm_
  structure_ext: .pdb
  score_prefix: scores_
  score_ext: .csv
scheduler:
  backend: kubernetes
  profile: gaudi
  overrides:
    time: 0-04:00:00
    cores: 64
  kubernetes:
    namespace: folding
redis:
  channel: results
  ttl: 30m
fold:
  command: [esmfold, "{{.Sequence}}"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/scratch/data", cfg.DataDir)
	assert.Equal(t, 12, cfg.Workers)
	assert.Equal(t, sharedlog.JSONLines, cfg.LogFormat)
	assert.Equal(t, "esm_", cfg.Scheme.StructurePrefix)
	assert.Equal(t, "folding", cfg.Scheduler.Kubernetes.Namespace)
	// unset fields keep their defaults
	assert.Equal(t, "foldy-array", cfg.Scheduler.Kubernetes.AppLabel)
	assert.Equal(t, "results", cfg.Redis.Channel)
	assert.Equal(t, 30*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, []string{"esmfold", "{{.Sequence}}"}, cfg.Fold.Command)

	p, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, "gaudi", p.Partition)
	assert.Equal(t, 64, p.Cores)
	assert.Equal(t, "0-04:00:00", p.Time)
	assert.True(t, p.Exclusive)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URI", "redis:6379")
	t.Setenv("FOLDY_DATA_DIR", "/env/data")
	t.Setenv("FOLDY_WORKERS", "3")
	cfg, err := Load(writeConfig(t, "data_dir: /file/data\nworkers: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.Redis.URI)
	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, 3, cfg.Workers)

	t.Setenv("FOLDY_WORKERS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestInvalid(t *testing.T) {
	clearEnv(t)
	for name, body := range map[string]string{
		"format":  "log_format: xml\n",
		"backend": "scheduler:\n  backend: pbs\n",
		"profile": "scheduler:\n  profile: tpu\n",
		"command": "fold:\n  command: []\n",
		"workers": "workers: -1\n",
		"yaml":    "workers: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
