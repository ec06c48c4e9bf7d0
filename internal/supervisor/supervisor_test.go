package supervisor

import (
	"os/exec"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oh-project/procd/internal/config"
	"github.com/oh-project/procd/internal/registry"
)

func mustLookPath(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available on this system: %v", name, err)
	}
	return p
}

func testProcessConfig(t *testing.T, name, cmd string, args []string) config.ProcessConfig {
	t.Helper()
	dir := t.TempDir()
	return config.ProcessConfig{
		Name:       name,
		Cmd:        cmd,
		CmdAbsPath: mustLookPath(t, cmd),
		Args:       args,
		Home:       dir,
		OutputDir:  dir,
		EnableRaw:  nil, // enabled by default
	}
}

func TestSupervisorRespawnsAfterNaturalExit(t *testing.T) {
	reg := registry.New()
	cfg := testProcessConfig(t, "svc", "true", nil)

	sup := New(reg, cfg, zap.NewNop())
	go sup.Run()

	deadline := time.After(3 * time.Second)
	for {
		e, _ := reg.Find("svc")
		if e.StartCount >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected start_count>=2 within 3s, got %d (state=%s)", e.StartCount, e.State)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSupervisorHonorsMaxRun(t *testing.T) {
	reg := registry.New()
	cfg := testProcessConfig(t, "svc", "sleep", []string{"10"})
	cfg.MaxRun = config.Duration(300 * time.Millisecond)

	sup := New(reg, cfg, zap.NewNop())
	go sup.Run()

	// Wait until we observe a Running -> Stopped transition.
	sawStopped := false
	deadline := time.After(3 * time.Second)
	for !sawStopped {
		e, _ := reg.Find("svc")
		if e.State == registry.ProcStateStopped {
			sawStopped = true
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected Stopped state within 3s due to max_run, last state=%s", e.State)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSupervisorKillIsTerminal(t *testing.T) {
	reg := registry.New()
	cfg := testProcessConfig(t, "svc", "sleep", []string{"60"})

	sup := New(reg, cfg, zap.NewNop())
	go sup.Run()

	// Wait for Running.
	waitForState(t, reg, "svc", registry.ProcStateRunning, 2*time.Second)

	control := reg.GetControl("svc")
	control <- registry.ControlKill

	waitForState(t, reg, "svc", registry.ProcStateKilled, 2*time.Second)

	// pid must be preserved (not reset to 0) and no further Running
	// transitions should ever be observed.
	e, _ := reg.Find("svc")
	if e.PID == 0 {
		t.Fatal("expected pid to be preserved after Killed")
	}

	time.Sleep(1500 * time.Millisecond) // past the respawn floor, to be sure
	e, _ = reg.Find("svc")
	if e.State != registry.ProcStateKilled {
		t.Fatalf("expected state to remain Killed, got %s", e.State)
	}
}

func TestSupervisorRestartDoesNotHonorNext(t *testing.T) {
	reg := registry.New()
	cfg := testProcessConfig(t, "svc", "sleep", []string{"60"})
	cfg.Next = config.Duration(5 * time.Second)

	sup := New(reg, cfg, zap.NewNop())
	go sup.Run()

	waitForState(t, reg, "svc", registry.ProcStateRunning, 2*time.Second)

	control := reg.GetControl("svc")
	control <- registry.ControlRestart

	waitForState(t, reg, "svc", registry.ProcStateStopped, 2*time.Second)

	// If `next` were honored here, this would take >=5s; the respawn
	// floor alone should bring us back to Running well under that.
	waitForState(t, reg, "svc", registry.ProcStateRunning, 3*time.Second)
}

func TestSupervisorDisabledNeverSpawns(t *testing.T) {
	reg := registry.New()
	cfg := testProcessConfig(t, "svc", "true", nil)
	disabled := false
	cfg.EnableRaw = &disabled

	sup := New(reg, cfg, zap.NewNop())
	sup.Run() // should return immediately, no goroutine needed

	e, _ := reg.Find("svc")
	if e.State != registry.ProcStateReady {
		t.Fatalf("expected disabled process to stay Ready, got %s", e.State)
	}
}

func waitForState(t *testing.T, reg *registry.Registry, name string, want registry.ProcState, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		e, _ := reg.Find(name)
		if e.State == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected state %s within %s, last=%s", want, timeout, e.State)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestExitCodeOf(t *testing.T) {
	if got := exitCodeOf(nil); got != 0 {
		t.Fatalf("expected 0 for nil error, got %d", got)
	}

	cmd := exec.Command(mustLookPath(t, "sh"), "-c", "exit 7")
	err := cmd.Run()
	if got := exitCodeOf(err); got != 7 {
		t.Fatalf("expected exit code 7, got %d", got)
	}
}

func TestBuildArgvSubstitutesProcessHome(t *testing.T) {
	pc := config.ProcessConfig{
		CmdAbsPath: "/usr/bin/app",
		Args:       []string{"--root", "{Process-Home}/data"},
		Home:       "/srv/app",
	}
	argv, substituted := buildArgv(pc)
	if !substituted {
		t.Fatal("expected homeSubstituted=true")
	}
	want := "/srv/app/data"
	if argv[2] != want {
		t.Fatalf("expected substituted arg %q, got %q", want, argv[2])
	}
}

func TestBuildArgvWithSandboxPrefix(t *testing.T) {
	pc := config.ProcessConfig{
		CmdAbsPath:  "/usr/bin/app",
		Args:        []string{"--flag"},
		SandboxArgv: []string{"/usr/bin/bwrap", "--die-with-parent"},
	}
	argv, substituted := buildArgv(pc)
	if substituted {
		t.Fatal("expected no substitution without {Process-Home} tokens")
	}
	want := []string{"/usr/bin/bwrap", "--die-with-parent", "/usr/bin/app", "--flag"}
	if len(argv) != len(want) {
		t.Fatalf("argv length mismatch: got %v want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv[%d]=%q, want %q", i, argv[i], want[i])
		}
	}
}

func TestWrapForMemoryLimitNoop(t *testing.T) {
	argv := []string{"/bin/true"}
	if got := wrapForMemoryLimit(argv, 0); len(got) != 1 || got[0] != "/bin/true" {
		t.Fatalf("expected unchanged argv when memory_limit<=0, got %v", got)
	}
}

func TestWrapForMemoryLimitWraps(t *testing.T) {
	argv := []string{"/bin/true", "-x"}
	got := wrapForMemoryLimit(argv, 64)
	if got[0] != "sh" || got[1] != "-c" {
		t.Fatalf("expected sh -c wrapper, got %v", got)
	}
	if got[3] != "/bin/true" {
		t.Fatalf("expected wrapped argv to carry original argv[0], got %v", got)
	}
}

func TestBuildEnvForcesNoColor(t *testing.T) {
	pc := config.ProcessConfig{Envs: []string{"FOO=bar"}}
	env := buildEnv(pc)
	found := false
	for _, kv := range env {
		if kv == "NO_COLOR=1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected NO_COLOR=1 to be forced into the environment")
	}
}
