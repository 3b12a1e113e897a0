package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envKeys = []string{
	"MMSIM_MODEL_S0", "MMSIM_MODEL_N", "MMSIM_MODEL_DT", "MMSIM_MODEL_MU",
	"MMSIM_MODEL_SIGMA", "MMSIM_MODEL_GAMMA", "MMSIM_MODEL_K",
	"MMSIM_BATCH_N_SIM", "MMSIM_BATCH_SEED", "MMSIM_BATCH_WORKERS",
	"MMSIM_STORE_PATH", "MMSIM_LOG_LEVEL", "MMSIM_HTTP_ADDR",
}

func unsetAllConfigEnv() {
	for _, k := range envKeys {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetAllConfigEnv()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m := cfg.Model
	if m.S0 != 100 || m.N != 200 || m.Dt != 0.005 || m.Mu != 0 || m.Sigma != 2 {
		t.Errorf("unexpected process defaults: %+v", m)
	}
	if m.Gamma != 0.1 || m.K != 1.5 {
		t.Errorf("unexpected model defaults: %+v", m)
	}
	if cfg.Batch.NSim != 100 {
		t.Errorf("expected n_sim 100, got %d", cfg.Batch.NSim)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	unsetAllConfigEnv()
	defer unsetAllConfigEnv()

	os.Setenv("MMSIM_MODEL_GAMMA", "0.25")
	os.Setenv("MMSIM_BATCH_N_SIM", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.Gamma != 0.25 {
		t.Errorf("expected gamma 0.25, got %f", cfg.Model.Gamma)
	}
	if cfg.Batch.NSim != 7 {
		t.Errorf("expected n_sim 7, got %d", cfg.Batch.NSim)
	}
}

func TestLoadFile(t *testing.T) {
	unsetAllConfigEnv()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
model:
  n: 50
  k: 2
batch:
  n_sim: 3
  seed: 11
store:
  path: paths.db
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model.N != 50 || cfg.Model.K != 2 {
		t.Errorf("expected file values, got %+v", cfg.Model)
	}
	if cfg.Model.Gamma != 0.1 {
		t.Errorf("expected default gamma to survive, got %f", cfg.Model.Gamma)
	}
	if cfg.Batch.Seed != 11 || cfg.Store.Path != "paths.db" {
		t.Errorf("unexpected batch/store: %+v %+v", cfg.Batch, cfg.Store)
	}
}

func TestLoadMissingFile(t *testing.T) {
	unsetAllConfigEnv()
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero gamma", func(c *Config) { c.Model.Gamma = 0 }, "model.gamma"},
		{"negative k", func(c *Config) { c.Model.K = -1 }, "model.k"},
		{"zero dt", func(c *Config) { c.Model.Dt = 0 }, "model.dt"},
		{"zero n", func(c *Config) { c.Model.N = 0 }, "model.n"},
		{"negative sigma", func(c *Config) { c.Model.Sigma = -0.1 }, "model.sigma"},
		{"zero n_sim", func(c *Config) { c.Batch.NSim = 0 }, "batch.n_sim"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	unsetAllConfigEnv()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("expected error to name %s, got %v", tc.field, err)
			}
		})
	}
}

func TestModelConversions(t *testing.T) {
	m := ModelConfig{S0: 90, N: 10, Dt: 0.1, Mu: 0.5, Sigma: 1.5, Gamma: 0.2, K: 3}

	e := m.Engine()
	if e.Gamma != 0.2 || e.K != 3 || e.Sigma != 1.5 || e.Dt != 0.1 || e.N != 10 {
		t.Errorf("unexpected engine params: %+v", e)
	}
	p := m.Process()
	if p.S0 != 90 || p.Mu != 0.5 || p.Sigma != 1.5 || p.N != 10 || p.Dt != 0.1 {
		t.Errorf("unexpected process params: %+v", p)
	}
	if err := ValidateModel(m); err != nil {
		t.Errorf("expected valid model, got %v", err)
	}
	m.Gamma = 0
	if err := ValidateModel(m); err == nil {
		t.Error("expected invalid model")
	}
}
