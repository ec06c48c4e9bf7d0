package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/oh-project/procd/internal/config"
)

// buildArgv assembles the effective argv (sandbox prefix, then cmd, then
// args) and performs "{Process-Home}" substitution on every token. It
// reports whether any substitution occurred, since that suppresses the
// spawner's own chdir (the sandbox is assumed to chdir itself in that case).
func buildArgv(pc config.ProcessConfig) (argv []string, homeSubstituted bool) {
	argv = make([]string, 0, len(pc.SandboxArgv)+1+len(pc.Args))
	argv = append(argv, pc.SandboxArgv...)
	argv = append(argv, pc.CmdAbsPath)
	argv = append(argv, pc.Args...)

	const token = "{Process-Home}"
	for i, tok := range argv {
		if strings.Contains(tok, token) {
			argv[i] = strings.ReplaceAll(tok, token, pc.Home)
			homeSubstituted = true
		}
	}
	return argv, homeSubstituted
}

// buildEnv merges the parent environment with pc's merged envs list
// (last-wins on duplicate keys), then forces NO_COLOR=1.
func buildEnv(pc config.ProcessConfig) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, pc.Envs...)
	env = append(env, "NO_COLOR=1")
	return env
}

// wrapForMemoryLimit prefixes argv with a tiny shell launcher that installs
// an RLIMIT_AS cap before exec'ing the real argv. os/exec has no pre-exec
// hook equivalent to Rust's pre_exec, so the rlimit is installed inside a
// forked shell instead of the supervisor process itself.
func wrapForMemoryLimit(argv []string, memoryLimitMiB int64) []string {
	if memoryLimitMiB <= 0 {
		return argv
	}
	kib := memoryLimitMiB * 1024
	script := `ulimit -v "$1"; shift; exec "$0" "$@"`
	wrapped := make([]string, 0, len(argv)+3)
	wrapped = append(wrapped, "sh", "-c", script)
	wrapped = append(wrapped, argv[0])
	wrapped = append(wrapped, strconv.FormatInt(kib, 10))
	wrapped = append(wrapped, argv[1:]...)
	return wrapped
}

// spawnResult is what Spawn hands back to the supervisor loop.
type spawnResult struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	pid    int
}

// Spawn builds and starts the child described by pc, wiring stdout/stderr
// pipes for the Output Pipe Logger. On any failure it returns a non-nil
// error and no process is left running.
func Spawn(pc config.ProcessConfig) (*spawnResult, error) {
	argv, homeSubstituted := buildArgv(pc)
	argv = wrapForMemoryLimit(argv, pc.MemoryLimit)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = buildEnv(pc)

	if !homeSubstituted && pc.Home != "" {
		cmd.Dir = pc.Home
	}

	applyPlatformAttrs(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	return &spawnResult{
		cmd:    cmd,
		stdout: stdoutPipe,
		stderr: stderrPipe,
		pid:    cmd.Process.Pid,
	}, nil
}
