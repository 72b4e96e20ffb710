package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/hypersweep/internal/config"
	"github.com/signalnine/hypersweep/internal/fitness"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Study.Name != "evolvion_sweep_v1" {
		t.Errorf("expected default study name, got %q", cfg.Study.Name)
	}
	if cfg.Study.Storage != "sqlite:///hypersweep.db" {
		t.Errorf("expected default storage, got %q", cfg.Study.Storage)
	}
	if cfg.Study.Trials != 100 || cfg.Study.Parallel != 1 || cfg.Study.Seed != 42 {
		t.Errorf("unexpected study defaults: %+v", cfg.Study)
	}
	if cfg.Trainer.Launcher != config.LauncherExec {
		t.Errorf("expected exec launcher, got %q", cfg.Trainer.Launcher)
	}
	if cfg.Trainer.TimeLimit != 10*time.Minute {
		t.Errorf("expected 10m time limit, got %v", cfg.Trainer.TimeLimit)
	}
	if cfg.Monitor.Interval != time.Minute || cfg.Monitor.Target != 100 {
		t.Errorf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.Results.TopK != 10 {
		t.Errorf("expected results top_k 10, got %d", cfg.Results.TopK)
	}
	if cfg.Mode() != fitness.ModeEncoded {
		t.Errorf("expected encoded mode, got %q", cfg.Mode())
	}
}

func TestLoadExplicitZeroes(t *testing.T) {
	cfg, err := config.Load("../../testdata/unbounded.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Study.Trials != 0 {
		t.Errorf("trials: 0 should mean unbounded, got %d", cfg.Study.Trials)
	}
	if cfg.Study.Seed != 0 {
		t.Errorf("seed: 0 should be kept, got %d", cfg.Study.Seed)
	}
	if cfg.Monitor.Target != 0 {
		t.Errorf("unbounded study should have no monitor target, got %d", cfg.Monitor.Target)
	}
	if cfg.Study.Parallel != 1 {
		t.Errorf("parallel default lost: %d", cfg.Study.Parallel)
	}
}

func TestLoadRosenbrock(t *testing.T) {
	cfg, err := config.Load("../../testdata/rosenbrock.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Study.Name != "rosenbrock_v1" || cfg.Study.Trials != 200 || cfg.Study.Seeds != 5 {
		t.Errorf("unexpected study: %+v", cfg.Study)
	}
	if cfg.Trainer.TimeLimit != 20*time.Minute {
		t.Errorf("expected 20m time limit, got %v", cfg.Trainer.TimeLimit)
	}
	if cfg.Study.RetryInterval != 30*time.Second {
		t.Errorf("expected 30s retry interval, got %v", cfg.Study.RetryInterval)
	}
	if got := cfg.Trainer.Command[len(cfg.Trainer.Command)-1]; got != "--" {
		t.Errorf("expected command prefix to end in --, got %q", got)
	}
	if cfg.Trainer.Env["DOTNET_CLI_TELEMETRY_OPTOUT"] != "1" {
		t.Error("expected trainer env to be loaded")
	}
	if len(cfg.Space) != 28 {
		t.Errorf("expected 28 parameters, got %d", len(cfg.Space))
	}
	sp, err := cfg.NewSpace()
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	p, ok := sp.Param("min_species_count")
	if !ok || p.HighFrom == nil || p.HighFrom.Param != "species_count" || p.HighFrom.Div != 3 {
		t.Errorf("min_species_count derived bound not loaded: %+v", p)
	}
}

func TestLoadDocker(t *testing.T) {
	cfg, err := config.Load("../../testdata/docker.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Trainer.Launcher != config.LauncherDocker || cfg.Trainer.Image == "" {
		t.Errorf("unexpected trainer: %+v", cfg.Trainer)
	}
	if cfg.Trainer.MemoryLimit != 4<<30 {
		t.Errorf("expected 4GiB memory limit, got %d", cfg.Trainer.MemoryLimit)
	}
	if !cfg.Space[1].Log {
		t.Error("expected learning_rate to be log scaled")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load("../../testdata/invalid.yaml")
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no command",
			body: "space:\n  - {name: a, kind: int, low: 1, high: 2}\n",
			want: "trainer.command",
		},
		{
			name: "no space",
			body: "trainer:\n  command: [./t.sh]\n",
			want: "no parameters",
		},
		{
			name: "docker without image",
			body: "trainer:\n  command: [./t.sh]\n  launcher: docker\nspace:\n  - {name: a, kind: int, low: 1, high: 2}\n",
			want: "trainer.image",
		},
		{
			name: "unknown launcher",
			body: "trainer:\n  command: [./t.sh]\n  launcher: ssh\nspace:\n  - {name: a, kind: int, low: 1, high: 2}\n",
			want: "trainer.launcher",
		},
		{
			name: "bad objective",
			body: "study:\n  objective: median\ntrainer:\n  command: [./t.sh]\nspace:\n  - {name: a, kind: int, low: 1, high: 2}\n",
			want: "study.objective",
		},
		{
			name: "unknown dependency",
			body: "trainer:\n  command: [./t.sh]\nspace:\n  - {name: a, kind: int, low: 1, high_from: {param: b, div: 3}}\n",
			want: "space",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sweep.yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Study.Storage == "" || cfg.Study.Name == "" {
		t.Errorf("default config missing study settings: %+v", cfg.Study)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}
