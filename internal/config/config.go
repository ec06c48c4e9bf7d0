// Package config loads and validates the supervisor's declarative YAML
// configuration: the HTTP bind address, global defaults, sandbox templates,
// and the list of supervised child programs.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level, immutable daemon configuration.
type Config struct {
	HTTP           HTTPConfig        `yaml:"http"`
	Home           string            `yaml:"home"`
	LogDir         string            `yaml:"log_dir"`
	Auth           AuthConfig        `yaml:"auth"`
	Envs           []string          `yaml:"envs"`
	RestartDelay   Duration          `yaml:"restart_delay"`
	EnableSandbox  bool              `yaml:"enable_sandbox"`
	Sandboxes      []SandboxTemplate `yaml:"sandbox"`
	Process        []ProcessConfig   `yaml:"process"`
}

// HTTPConfig configures the control-plane HTTP listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds HTTP Basic credentials for the control plane.
// An empty Username disables authentication entirely.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Check reports whether the given credentials match the configured ones.
func (a AuthConfig) Check(user, pass string) bool {
	return a.Username == user && a.Password == pass
}

// Enabled reports whether Basic auth is configured at all.
func (a AuthConfig) Enabled() bool { return a.Username != "" }

// SandboxTemplate names a reusable command-prefix wrapper (e.g. a jailer).
type SandboxTemplate struct {
	Name   string   `yaml:"name"`
	Cmd    []string `yaml:"cmd"`
	Enable bool     `yaml:"enable"`
}

// ProcessConfig describes one supervised child program. Immutable once
// loaded: all fields are resolved/defaulted by Load before the config is
// handed to any supervisor.
type ProcessConfig struct {
	Name           string   `yaml:"name"`
	Cmd            string   `yaml:"cmd"`
	Args           []string `yaml:"args"`
	Envs           []string `yaml:"envs"`
	Home           string   `yaml:"home"`
	RedirectOutput bool     `yaml:"redirect_output"`
	OutputDir      string   `yaml:"output_dir"`
	MaxRun         Duration `yaml:"max_run"`
	Next           Duration `yaml:"next"`
	MemoryLimit    int64    `yaml:"memory_limit"` // MiB, 0 = unlimited
	WebAddress     string   `yaml:"web_address"`
	EnableRaw      *bool    `yaml:"enable"`
	Sandbox        []string `yaml:"sandbox"`

	// Resolved at load time; not present in the YAML source.
	CmdAbsPath  string   `yaml:"-"`
	SandboxArgv []string `yaml:"-"`
}

// Enable reports whether the child should be supervised at all. Absent from
// the YAML source, it defaults to true; only an explicit "enable: false"
// disables supervision.
func (pc ProcessConfig) Enable() bool {
	return pc.EnableRaw == nil || *pc.EnableRaw
}

// Load reads, defaults, validates and resolves the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.HTTP.Addr == "" {
		return nil, fmt.Errorf("http.addr is required")
	}

	if cfg.Home == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfg.Home = filepath.Dir(abs)
	}

	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	if cfg.RestartDelay.Duration() == 0 {
		cfg.RestartDelay = Duration(10 * time.Second)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// sandboxByName indexes configured sandbox templates, honoring enable_sandbox
// as a global kill switch.
func (c *Config) sandboxByName() map[string][]string {
	out := make(map[string][]string, len(c.Sandboxes))
	if !c.EnableSandbox {
		return out
	}
	for _, sb := range c.Sandboxes {
		if !sb.Enable || len(sb.Cmd) == 0 {
			continue
		}
		out[sb.Name] = sb.Cmd
	}
	return out
}

// resolve fills in per-process defaults (env merge, output_dir, home), looks
// up cmd and sandbox[0] through PATH, and validates name uniqueness.
func (c *Config) resolve() error {
	sandboxes := c.sandboxByName()
	seen := make(map[string]struct{}, len(c.Process))

	for i := range c.Process {
		pc := &c.Process[i]

		pc.Name = strings.TrimSpace(pc.Name)
		if pc.Name == "" {
			return fmt.Errorf("process[%d]: name is required", i)
		}
		if _, dup := seen[pc.Name]; dup {
			return fmt.Errorf("process[%d]: duplicate name %q", i, pc.Name)
		}
		seen[pc.Name] = struct{}{}

		if pc.Cmd == "" {
			return fmt.Errorf("process %q: cmd is required", pc.Name)
		}

		merged := make([]string, 0, len(c.Envs)+len(pc.Envs))
		merged = append(merged, c.Envs...)
		merged = append(merged, pc.Envs...)
		pc.Envs = merged

		if pc.Home == "" {
			pc.Home = c.Home
		}

		if pc.OutputDir == "" {
			pc.OutputDir = filepath.Join(c.LogDir, pc.Name)
		}

		if !c.EnableSandbox {
			pc.Sandbox = nil
		}

		var sandboxArgv []string
		for _, name := range pc.Sandbox {
			tmpl, ok := sandboxes[name]
			if !ok {
				return fmt.Errorf("process %q: unknown or disabled sandbox %q", pc.Name, name)
			}
			sandboxArgv = append(sandboxArgv, tmpl...)
		}
		if len(sandboxArgv) > 0 {
			resolved, err := exec.LookPath(sandboxArgv[0])
			if err != nil {
				return fmt.Errorf("process %q: sandbox binary %q: %w", pc.Name, sandboxArgv[0], err)
			}
			sandboxArgv[0] = resolved
		}
		pc.SandboxArgv = sandboxArgv

		abs, err := exec.LookPath(pc.Cmd)
		if err != nil {
			return fmt.Errorf("process %q: cmd %q: %w", pc.Name, pc.Cmd, err)
		}
		pc.CmdAbsPath = abs
	}

	return nil
}
