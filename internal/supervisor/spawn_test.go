package supervisor

import (
	"io"
	"testing"

	"github.com/oh-project/procd/internal/config"
)

func TestSpawnAndWait(t *testing.T) {
	abs := mustLookPath(t, "true")
	pc := config.ProcessConfig{
		Name:       "svc",
		CmdAbsPath: abs,
		Home:       t.TempDir(),
	}

	sr, err := Spawn(pc)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if sr.pid <= 0 {
		t.Fatalf("expected positive pid, got %d", sr.pid)
	}

	_, _ = io.Copy(io.Discard, sr.stdout)
	_, _ = io.Copy(io.Discard, sr.stderr)
	if err := sr.cmd.Wait(); err != nil {
		t.Fatalf("expected /bin/true to exit 0, got: %v", err)
	}
}

func TestSpawnUnresolvableCmdFails(t *testing.T) {
	pc := config.ProcessConfig{
		Name:       "svc",
		CmdAbsPath: "/no/such/binary-xyz",
		Home:       t.TempDir(),
	}
	if _, err := Spawn(pc); err == nil {
		t.Fatal("expected Spawn to fail for a nonexistent binary")
	}
}
