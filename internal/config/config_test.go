package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/probkit/beliefnet/internal/config"
)

const validYAML = `
version: "1"
engine:
  query_workers: 2
network:
  variables:
    - id: rain
      name: Rain
      states: ["no", "yes"]
    - id: wet
      name: WetGrass
      states: ["no", "yes"]
  edges:
    - parent: rain
      child: wet
  tensors:
    - variable: rain
      dimensions: [2]
      values: [0.8, 0.2]
    - variable: wet
      dimensions: [2, 2]
      values: [0.9, 0.1, 0.05, 0.95]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_LoadAndDefaults(t *testing.T) {
	l, err := config.NewLoader(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg := l.Config()
	if cfg.Version != "1" {
		t.Errorf("version = %q", cfg.Version)
	}
	if cfg.Engine.QueryWorkers != 2 {
		t.Errorf("explicit query_workers not honored: %d", cfg.Engine.QueryWorkers)
	}
	if cfg.Engine.QueueDepth != 256 {
		t.Errorf("queue_depth default = %d, want 256", cfg.Engine.QueueDepth)
	}
	if cfg.Engine.QueryTimeoutMs != 30000 {
		t.Errorf("query_timeout_ms default = %d, want 30000", cfg.Engine.QueryTimeoutMs)
	}
	if len(cfg.Network.Variables) != 2 || len(cfg.Network.Tensors) != 2 {
		t.Errorf("network not fully parsed: %+v", cfg.Network)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := config.NewLoader(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, validYAML)
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	var observed *config.Config
	l.OnChange(func(c *config.Config) { observed = c })

	updated := strings.Replace(validYAML, `version: "1"`, `version: "2"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := l.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.Version != "2" {
		t.Errorf("reloaded version = %q", cfg.Version)
	}
	if observed == nil || observed.Version != "2" {
		t.Error("OnChange callback did not fire with the new config")
	}
	if l.Config().Version != "2" {
		t.Error("Config() still serves the old snapshot")
	}
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		l, err := config.NewLoader(writeConfig(t, validYAML))
		if err != nil {
			t.Fatal(err)
		}
		return l.Config()
	}

	if err := config.Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "missing version",
			mutate: func(c *config.Config) { c.Version = "" },
			want:   "version is required",
		},
		{
			name: "duplicate variable",
			mutate: func(c *config.Config) {
				c.Network.Variables = append(c.Network.Variables, c.Network.Variables[0])
			},
			want: "duplicate variable id",
		},
		{
			name: "duplicate state",
			mutate: func(c *config.Config) {
				c.Network.Variables[0].States = []string{"yes", "yes"}
			},
			want: "duplicate state",
		},
		{
			name: "unknown edge endpoint",
			mutate: func(c *config.Config) {
				c.Network.Edges[0].Child = "ghost"
			},
			want: "unknown child",
		},
		{
			name: "self loop",
			mutate: func(c *config.Config) {
				c.Network.Edges[0].Child = "rain"
			},
			want: "self-loop",
		},
		{
			name: "tensor for unknown variable",
			mutate: func(c *config.Config) {
				c.Network.Tensors[0].Variable = "ghost"
			},
			want: "unknown variable",
		},
		{
			name: "duplicate tensor",
			mutate: func(c *config.Config) {
				c.Network.Tensors = append(c.Network.Tensors, c.Network.Tensors[0])
			},
			want: "duplicate tensor",
		},
		{
			name: "value count mismatch",
			mutate: func(c *config.Config) {
				c.Network.Tensors[1].Values = []float64{0.5, 0.5}
			},
			want: "2 values for 4 cells",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}
