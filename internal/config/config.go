package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/space"
)

type Config struct {
	Study   Study         `yaml:"study"`
	Trainer Trainer       `yaml:"trainer"`
	Space   []space.Param `yaml:"space"`
	Monitor Monitor       `yaml:"monitor"`
	Results Results       `yaml:"results"`
	Log     Log           `yaml:"log"`
}

type Study struct {
	Name    string `yaml:"name"`
	Storage string `yaml:"storage"`
	// Trials is the number of trials per sweep; 0 runs until interrupted.
	Trials   int    `yaml:"trials"`
	Parallel int    `yaml:"parallel"`
	Seed     uint64 `yaml:"seed"`
	// Objective is "encoded" (solve rate plus secondary fitness) or "raw".
	Objective     string        `yaml:"objective"`
	Seeds         int           `yaml:"seeds"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

// Trainer describes how a sampled configuration is evaluated. Command is the
// fixed argument prefix; one name=value token per parameter is appended.
type Trainer struct {
	Command     []string          `yaml:"command"`
	Dir         string            `yaml:"dir"`
	Env         map[string]string `yaml:"env"`
	EnvFile     string            `yaml:"env_file"`
	Launcher    string            `yaml:"launcher"`
	Image       string            `yaml:"image"`
	TimeLimit   time.Duration     `yaml:"time_limit"`
	CPULimit    float64           `yaml:"cpu_limit"`
	MemoryLimit int64             `yaml:"memory_limit"`
}

type Monitor struct {
	Interval time.Duration `yaml:"interval"`
	Target   int           `yaml:"target"`
	TopK     int           `yaml:"top_k"`
	Window   int           `yaml:"window"`
}

type Results struct {
	Dir  string `yaml:"dir"`
	TopK int    `yaml:"top_k"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	LauncherExec   = "exec"
	LauncherDocker = "docker"
)

// Default returns the settings used when no config file is given, which is
// enough for the read-only commands.
func Default() *Config {
	cfg := preset()
	applyDefaults(&cfg)
	return &cfg
}

const (
	DefaultTrials = 100
	DefaultSeed   = 42
)

// preset holds the defaults for fields where zero is a meaningful value
// (trials: 0 is an unbounded sweep, seed: 0 is a seed). They are set before
// decoding so only keys absent from the file keep them.
func preset() Config {
	return Config{Study: Study{Trials: DefaultTrials, Seed: DefaultSeed}}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := preset()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// NewSpace builds the parameter space declared in the config.
func (c *Config) NewSpace() (*space.Space, error) {
	return space.New(c.Space)
}

func (c *Config) Mode() fitness.Mode {
	m, err := fitness.ParseMode(c.Study.Objective)
	if err != nil {
		return fitness.ModeEncoded
	}
	return m
}

func applyDefaults(cfg *Config) {
	s := &cfg.Study
	if s.Name == "" {
		s.Name = "evolvion_sweep_v1"
	}
	if s.Storage == "" {
		s.Storage = "sqlite:///hypersweep.db"
	}
	if s.Parallel == 0 {
		s.Parallel = 1
	}
	if s.Objective == "" {
		s.Objective = string(fitness.ModeEncoded)
	}
	if s.RetryInterval == 0 {
		s.RetryInterval = 10 * time.Second
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}

	t := &cfg.Trainer
	if t.Launcher == "" {
		t.Launcher = LauncherExec
	}
	if t.TimeLimit == 0 {
		t.TimeLimit = 10 * time.Minute
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 60 * time.Second
	}
	if cfg.Monitor.Target == 0 {
		cfg.Monitor.Target = s.Trials
	}
	if cfg.Monitor.TopK == 0 {
		cfg.Monitor.TopK = 5
	}
	if cfg.Monitor.Window == 0 {
		cfg.Monitor.Window = 10
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Results.TopK == 0 {
		cfg.Results.TopK = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	if cfg.Study.Trials < 0 {
		return fmt.Errorf("study.trials must not be negative")
	}
	if cfg.Study.Parallel < 1 {
		return fmt.Errorf("study.parallel must be at least 1")
	}
	if _, err := fitness.ParseMode(cfg.Study.Objective); err != nil {
		return fmt.Errorf("study.objective: %w", err)
	}
	if cfg.Study.Seeds < 0 {
		return fmt.Errorf("study.seeds must not be negative")
	}

	t := &cfg.Trainer
	if len(t.Command) == 0 {
		return fmt.Errorf("trainer.command is required")
	}
	switch t.Launcher {
	case LauncherExec:
	case LauncherDocker:
		if t.Image == "" {
			return fmt.Errorf("trainer.image is required for the docker launcher")
		}
	default:
		return fmt.Errorf("trainer.launcher %q: want exec or docker", t.Launcher)
	}
	if t.TimeLimit < 0 {
		return fmt.Errorf("trainer.time_limit must be positive")
	}

	if len(cfg.Space) == 0 {
		return fmt.Errorf("no parameters defined in space")
	}
	if _, err := space.New(cfg.Space); err != nil {
		return fmt.Errorf("space: %w", err)
	}
	return nil
}
