// Package supervisor implements the per-child lifecycle loop: spawn,
// register-running, wait-or-control-or-timeout, record exit, cool down,
// repeat. Termination on every control path (restart, kill, max_run
// timeout) is SIGKILL-only against the child's process group.
package supervisor

import (
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/oh-project/procd/internal/config"
	"github.com/oh-project/procd/internal/registry"
)

// respawnFloor is the minimum wall time between successive spawns of the
// same child, preventing tight crash loops.
const respawnFloor = time.Second

// spawnFailureBackoff is the sleep after a failed Spawn, before retrying.
const spawnFailureBackoff = time.Second

// maxRunKillGrace bounds how long we wait for Wait() to report after a
// SIGKILL before giving up on syncing with the control-channel drain;
// in practice SIGKILL reaps almost immediately.
const maxRunKillGrace = 2 * time.Second

// Supervisor runs one configured child's entire supervised lifetime.
type Supervisor struct {
	reg *registry.Registry
	cfg config.ProcessConfig
	log *zap.Logger
}

// New constructs a Supervisor for cfg, registering it with reg under a
// fresh control inbox. Run must be called (typically via `go`) to start
// the lifecycle loop; if cfg is disabled the entry stays in Ready forever
// and Run returns immediately without spawning.
func New(reg *registry.Registry, cfg config.ProcessConfig, log *zap.Logger) *Supervisor {
	tx := make(chan registry.ControlMsg, registry.ControlChanCapacity)
	reg.RegisterProcess(cfg, tx)
	return &Supervisor{
		reg: reg,
		cfg: cfg,
		log: log.With(zap.String("process", cfg.Name)),
	}
}

// Run executes the supervision loop. For a disabled process it returns at
// once; otherwise it returns only after a Kill control message, matching spec's "supervisor tasks are designed
// to never crash" policy: Spawn errors and output errors are absorbed,
// never surfaced as a Go error return.
func (s *Supervisor) Run() {
	if !s.cfg.Enable() {
		s.log.Info("process disabled, staying in Ready")
		return
	}

	control := s.reg.GetControl(s.cfg.Name)

	for {
		iterStart := time.Now()
		if s.runOneGeneration(control) {
			return // Kill received: task is done for good
		}
		if elapsed := time.Since(iterStart); elapsed < respawnFloor {
			time.Sleep(respawnFloor - elapsed)
		}
	}
}

// runOneGeneration spawns one child, supervises it to exit/termination,
// and returns true iff the supervisor should stop for good (Kill).
func (s *Supervisor) runOneGeneration(control <-chan registry.ControlMsg) (done bool) {
	sr, err := Spawn(s.cfg)
	if err != nil {
		s.log.Warn("spawn failed", zap.Error(err))
		s.reg.SetError(s.cfg.Name, err.Error())
		time.Sleep(spawnFailureBackoff)
		return false
	}

	s.reg.SetRunning(s.cfg.Name, sr.pid)
	s.log.Info("process started", zap.Int("pid", sr.pid))

	go (&outputLogger{
		kind: "out", outputDir: s.cfg.OutputDir, redirect: s.cfg.RedirectOutput,
		log: s.log, name: s.cfg.Name, pid: sr.pid,
	}).run(sr.stdout)
	go (&outputLogger{
		kind: "err", outputDir: s.cfg.OutputDir, redirect: s.cfg.RedirectOutput,
		log: s.log, name: s.cfg.Name, pid: sr.pid,
	}).run(sr.stderr)

	waitDone := make(chan int, 1)
	go func() {
		waitDone <- exitCodeOf(sr.cmd.Wait())
	}()

	var maxRunC <-chan time.Time
	if d := s.cfg.MaxRun.Duration(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		maxRunC = t.C
	}

	select {
	case code := <-waitDone:
		s.reg.SetExited(s.cfg.Name, code)
		s.log.Info("process exited", zap.Int("exit_code", code))
		s.sleepNext()
		return false

	case msg := <-control:
		return s.handleControl(msg, sr.pid, waitDone)

	case <-maxRunC:
		s.log.Info("max_run elapsed, terminating", zap.Int("pid", sr.pid))
		killHard(sr.pid)
		s.drainWait(waitDone)
		s.reg.SetState(s.cfg.Name, registry.ProcStateStopped)

		// "User intent wins": a Restart queued while max_run was firing
		// skips the next cool-down, same as an explicit Restart would.
		select {
		case pending := <-control:
			if pending == registry.ControlRestart {
				return false
			}
			if pending == registry.ControlKill {
				s.reg.SetState(s.cfg.Name, registry.ProcStateKilled)
				return true
			}
		default:
		}
		s.sleepNext()
		return false
	}
}

// handleControl applies a control message that arrived while pid was
// running (the natural-exit and max-run branches are handled inline).
func (s *Supervisor) handleControl(msg registry.ControlMsg, pid int, waitDone <-chan int) (done bool) {
	switch msg {
	case registry.ControlRestart:
		s.log.Info("restart requested", zap.Int("pid", pid))
		killHard(pid)
		s.drainWait(waitDone)
		s.reg.SetState(s.cfg.Name, registry.ProcStateStopped)
		return false // next is NOT honored on user-initiated restart

	case registry.ControlKill:
		s.log.Info("kill requested", zap.Int("pid", pid))
		killHard(pid)
		s.drainWait(waitDone)
		s.reg.SetState(s.cfg.Name, registry.ProcStateKilled)
		return true

	default:
		return false
	}
}

// drainWait waits (briefly) for the reaper goroutine so the wait4 syscall
// completes before we move on; a dead pid is always reaped quickly after
// SIGKILL, so this never blocks supervision for long in practice.
func (s *Supervisor) drainWait(waitDone <-chan int) {
	select {
	case <-waitDone:
	case <-time.After(maxRunKillGrace):
		s.log.Warn("process did not report exit after SIGKILL within grace window")
	}
}

// sleepNext honors the configured cool-down after a natural exit or a
// max_run termination (never after a user-initiated Restart).
func (s *Supervisor) sleepNext() {
	if d := s.cfg.Next.Duration(); d > 0 {
		time.Sleep(d)
	}
}

// exitCodeOf extracts a process exit code from cmd.Wait()'s error,
// returning -1 when the code can't be determined (e.g. killed by signal).
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
