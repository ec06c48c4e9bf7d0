package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, yamlBody string) string {
	t.Helper()
	path := filepath.Join(dir, "procd.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/path.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadRequiresHTTPAddr(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "home: \"/tmp\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when http.addr is missing")
	}
}

func TestLoadDefaultsHomeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http:\n  addr: \"127.0.0.1:8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	abs, _ := filepath.Abs(dir)
	if cfg.Home != abs {
		t.Fatalf("expected home=%q, got %q", abs, cfg.Home)
	}
}

func TestLoadDefaultsLogDirAndRestartDelay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http:\n  addr: \"127.0.0.1:8080\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogDir != "logs" {
		t.Fatalf("expected default log_dir=logs, got %q", cfg.LogDir)
	}
	if cfg.RestartDelay.Duration() != 10*time.Second {
		t.Fatalf("expected default restart_delay=10s, got %s", cfg.RestartDelay.Duration())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "http:\n  addr: \"127.0.0.1:8080\"\nbogus_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected strict decoding to reject an unknown top-level field")
	}
}

func TestLoadRejectsDuplicateProcessNames(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
process:
  - name: svc
    cmd: "true"
  - name: svc
    cmd: "true"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate process names to be rejected")
	}
}

func TestLoadMergesGlobalAndPerProcessEnvs(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
envs:
  - "GLOBAL=1"
process:
  - name: svc
    cmd: "true"
    envs:
      - "LOCAL=2"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pc := cfg.Process[0]
	if len(pc.Envs) != 2 || pc.Envs[0] != "GLOBAL=1" || pc.Envs[1] != "LOCAL=2" {
		t.Fatalf("expected merged envs [GLOBAL=1 LOCAL=2], got %v", pc.Envs)
	}
}

func TestLoadDefaultsOutputDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
log_dir: "mylogs"
process:
  - name: svc
    cmd: "true"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join("mylogs", "svc")
	if cfg.Process[0].OutputDir != want {
		t.Fatalf("expected output_dir=%q, got %q", want, cfg.Process[0].OutputDir)
	}
}

func TestProcessConfigEnableDefaultsTrue(t *testing.T) {
	var pc ProcessConfig
	if !pc.Enable() {
		t.Fatal("expected Enable() to default to true when unset")
	}
	disabled := false
	pc.EnableRaw = &disabled
	if pc.Enable() {
		t.Fatal("expected Enable() to report false when explicitly disabled")
	}
}

func TestLoadClearsSandboxWhenGloballyDisabled(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
enable_sandbox: false
sandbox:
  - name: jail
    cmd: ["true"]
    enable: true
process:
  - name: svc
    cmd: "true"
    sandbox: ["jail"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Process[0].Sandbox) != 0 {
		t.Fatalf("expected sandbox cleared when enable_sandbox=false, got %v", cfg.Process[0].Sandbox)
	}
}

func TestLoadResolvesSandboxArgv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
enable_sandbox: true
sandbox:
  - name: jail
    cmd: ["true", "--die-with-parent"]
    enable: true
process:
  - name: svc
    cmd: "true"
    sandbox: ["jail"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	argv := cfg.Process[0].SandboxArgv
	if len(argv) != 2 || argv[1] != "--die-with-parent" {
		t.Fatalf("expected resolved sandbox argv, got %v", argv)
	}
}

func TestLoadUnknownSandboxNameFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
http:
  addr: "127.0.0.1:8080"
enable_sandbox: true
process:
  - name: svc
    cmd: "true"
    sandbox: ["nope"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown sandbox name")
	}
}
