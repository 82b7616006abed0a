// Package config loads the YAML configuration shared by every foldy
// command.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thavlik/foldy-array/aggregator"
	"github.com/thavlik/foldy-array/artifact"
	"github.com/thavlik/foldy-array/scheduler"
	"github.com/thavlik/foldy-array/sharedlog"
)

// Config is the full configuration.
type Config struct {
	// Root is the working directory holding data/ and F<jjj>/.
	Root    string `yaml:"root"`
	DataDir string `yaml:"data_dir"`
	// Output defaults to collected_results.csv.gz under Root.
	Output    string               `yaml:"output"`
	Workers   int                  `yaml:"workers"`
	LogLevel  string               `yaml:"log_level"`
	LogFormat sharedlog.Format     `yaml:"log_format"`
	Scheme    artifact.Scheme      `yaml:"scheme"`
	Scores    artifact.ScoreFields `yaml:"scores"`
	// Executable is the foldy binary the job scripts invoke.
	Executable string    `yaml:"executable"`
	Scheduler  Scheduler `yaml:"scheduler"`
	Fold       Fold      `yaml:"fold"`
	Redis      Redis     `yaml:"redis"`
	Manifest   string    `yaml:"manifest"`
}

// Scheduler selects and configures the submission backend.
type Scheduler struct {
	Backend string `yaml:"backend"`
	Profile string `yaml:"profile"`
	// Overrides are applied on top of the named profile.
	Overrides  scheduler.Profile `yaml:"overrides"`
	Sbatch     string            `yaml:"sbatch"`
	Kubernetes Kubernetes        `yaml:"kubernetes"`
}

// Kubernetes configures the pod backend.
type Kubernetes struct {
	Namespace  string `yaml:"namespace"`
	Image      string `yaml:"image"`
	AppLabel   string `yaml:"app_label"`
	Volume     string `yaml:"volume"`
	MountPath  string `yaml:"mount_path"`
	Kubeconfig string `yaml:"kubeconfig"`
}

// Fold configures the folding command run by each task.
type Fold struct {
	Command []string `yaml:"command"`
	// WorkDir receives the artifacts; the task's working directory
	// when empty.
	WorkDir string `yaml:"work_dir"`
}

// Redis enables the aggregator when URI is set.
type Redis struct {
	URI     string        `yaml:"uri"`
	Channel string        `yaml:"channel"`
	TTL     time.Duration `yaml:"ttl"`
}

const (
	BackendSlurm      = "slurm"
	BackendKubernetes = "kubernetes"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Root:       ".",
		DataDir:    "data",
		LogLevel:   "info",
		LogFormat:  sharedlog.Legacy,
		Scheme:     artifact.DefaultScheme(),
		Scores:     artifact.DefaultScoreFields(),
		Executable: "foldy",
		Scheduler: Scheduler{
			Backend: BackendSlurm,
			Profile: "gpu",
			Sbatch:  "sbatch",
			Kubernetes: Kubernetes{
				Namespace: "default",
				Image:     "thavlik/foldy-array:latest",
				AppLabel:  "foldy-array",
				MountPath: "/work",
			},
		},
		Fold: Fold{
			Command: []string{"run_esmfold", "--sequence", "{{.Sequence}}", "--pdb", "{{.Structure}}", "--scores", "{{.Scores}}"},
		},
		Redis: Redis{
			Channel: aggregator.DefaultChannel,
			TTL:     aggregator.DefaultTTL,
		},
	}
}

// Load reads path over the defaults and applies environment
// overrides. An empty path only applies the overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(body, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("REDIS_URI"); ok {
		c.Redis.URI = v
	}
	if v, ok := os.LookupEnv("FOLDY_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("FOLDY_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOLDY_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := sharedlog.ParseFormat(string(c.LogFormat)); err != nil {
		return err
	}
	switch c.Scheduler.Backend {
	case BackendSlurm, BackendKubernetes:
	default:
		return fmt.Errorf("unknown scheduler backend %q", c.Scheduler.Backend)
	}
	if _, err := scheduler.LookupProfile(c.Scheduler.Profile); err != nil {
		return err
	}
	if len(c.Fold.Command) == 0 {
		return errors.New("fold.command is empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Profile returns the named profile with the configured overrides.
func (c *Config) Profile() (scheduler.Profile, error) {
	p, err := scheduler.LookupProfile(c.Scheduler.Profile)
	if err != nil {
		return p, err
	}
	o := c.Scheduler.Overrides
	if o.Partition != "" {
		p.Partition = o.Partition
	}
	if o.QOS != "" {
		p.QOS = o.QOS
	}
	if o.Cores != 0 {
		p.Cores = o.Cores
	}
	if o.GPUs != "" {
		p.GPUs = o.GPUs
	}
	if o.Mem != "" {
		p.Mem = o.Mem
	}
	if o.Time != "" {
		p.Time = o.Time
	}
	if o.Exclusive {
		p.Exclusive = true
	}
	if len(o.Setup) > 0 {
		p.Setup = o.Setup
	}
	return p, nil
}
