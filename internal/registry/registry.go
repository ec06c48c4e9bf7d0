// Package registry implements the process-wide, mutex-guarded index of
// supervised children described by the core supervision engine: one entry
// per configured child, keyed by name, serving both the supervisor tasks
// and the HTTP control plane.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/oh-project/procd/internal/config"
)

// ProcState is the lifecycle state of a supervised child. Zero value is
// ProcStateReady, matching "entries are created in Ready".
type ProcState int

const (
	ProcStateReady ProcState = iota
	ProcStateRunning
	ProcStateStopping
	ProcStateExited
	ProcStateStopped
	ProcStateKilled
	ProcStateError
)

func (s ProcState) String() string {
	switch s {
	case ProcStateReady:
		return "Ready"
	case ProcStateRunning:
		return "Running"
	case ProcStateStopping:
		return "Stopping"
	case ProcStateExited:
		return "Exited"
	case ProcStateStopped:
		return "Stopped"
	case ProcStateKilled:
		return "Killed"
	case ProcStateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// isTerminal reports whether the state marks the end of a generation, i.e.
// exit_time should be stamped on transition into it.
func (s ProcState) isTerminal() bool {
	switch s {
	case ProcStateStopped, ProcStateKilled, ProcStateExited, ProcStateError:
		return true
	default:
		return false
	}
}

// ControlMsg is sent into a supervisor's inbox to request out-of-band action.
type ControlMsg int

const (
	// ControlRestart terminates the child and respawns immediately,
	// bypassing the configured cool-down.
	ControlRestart ControlMsg = iota
	// ControlKill terminates the child and ends supervision for good.
	ControlKill
)

// ControlChanCapacity is the fixed inbox capacity; overflow on try-send is
// dropped rather than blocked.
const ControlChanCapacity = 8

// Entry is the Registry's mutable record for one configured child. Callers
// receive copies (see Find, List); the Registry itself is the sole owner.
type Entry struct {
	Index        int
	Name         string
	Cfg          config.ProcessConfig
	State        ProcState
	ExitCode     int
	ErrMessage   string
	PID          int
	StartTime    time.Time
	ExitTime     time.Time
	StartCount   uint64
	LastModified time.Time
	CmdAbsPath   string

	controlTx chan<- ControlMsg
}

// Registry is a concurrent, name-indexed map of Entry. A single mutex
// guards it: the workload is coarse-grained (a few hundred children at
// most) and critical sections touch map bookkeeping plus, in
// RegisterProcess and SetRunning, one stat of the executable. Callers
// always get a cloned Entry, never a live reference, so no caller holds
// the lock during its own I/O.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	startTime time.Time
	startStr  string
}

// New creates an empty Registry, stamping the daemon start time once.
func New() *Registry {
	now := time.Now()
	return &Registry{
		entries:   make(map[string]*Entry),
		startTime: now,
		startStr:  formatTime(now),
	}
}

// StartTime returns the daemon's start timestamp, formatted once at
// construction.
func (r *Registry) StartTime() string { return r.startStr }

// RegisterProcess creates (or reconnects) the entry for name. If name is
// new, it is inserted in Ready state with index = current size + 1 and
// last_modified seeded from cmd's mtime. If name already exists (a
// supervisor task restarting after a crash), only the control sender is
// overwritten.
func (r *Registry) RegisterProcess(cfg config.ProcessConfig, tx chan<- ControlMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[cfg.Name]; ok {
		e.controlTx = tx
		return
	}

	r.entries[cfg.Name] = &Entry{
		Index:        len(r.entries) + 1,
		Name:         cfg.Name,
		Cfg:          cfg,
		State:        ProcStateReady,
		CmdAbsPath:   cfg.CmdAbsPath,
		LastModified: mtimeOf(cfg.CmdAbsPath),
		controlTx:    tx,
	}
}

// GetControl returns the entry's control channel, or nil if name is unknown.
func (r *Registry) GetControl(name string) chan<- ControlMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e.controlTx
	}
	return nil
}

// Find returns a copy of the named entry, or false if it doesn't exist.
func (r *Registry) Find(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetState transitions name to state. Panics if name is unknown: registry
// inconsistency is a programming bug, not a runtime condition to be
// tolerated.
func (r *Registry) SetState(name string, state ProcState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		panic(fmt.Sprintf("registry: SetState: unknown process %q", name))
	}
	e.State = state
	if state.isTerminal() {
		e.ExitTime = time.Now()
	}
	if state == ProcStateError {
		e.StartCount++
	}
}

// SetExited transitions name to Exited(code).
func (r *Registry) SetExited(name string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		panic(fmt.Sprintf("registry: SetExited: unknown process %q", name))
	}
	e.State = ProcStateExited
	e.ExitCode = code
	e.ExitTime = time.Now()
}

// SetError transitions name to Error(message).
func (r *Registry) SetError(name, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		panic(fmt.Sprintf("registry: SetError: unknown process %q", name))
	}
	e.State = ProcStateError
	e.ErrMessage = message
	e.ExitTime = time.Now()
	e.StartCount++
}

// SetRunning atomically transitions name to Running with the new pid,
// stamping start_time, incrementing start_count, and capturing
// last_modified from the absolute executable path.
func (r *Registry) SetRunning(name string, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		panic(fmt.Sprintf("registry: SetRunning: unknown process %q", name))
	}
	e.State = ProcStateRunning
	e.PID = pid
	e.StartTime = time.Now()
	e.StartCount++
	e.LastModified = mtimeOf(e.CmdAbsPath)
}

// List returns a snapshot of all entries sorted by insertion index. It is a
// consistent snapshot at one mutex acquisition; it may linearize before or
// after any concurrent SetState.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Names returns the current key set, for the watcher's sweep.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

func mtimeOf(path string) time.Time {
	if path == "" {
		return time.Time{}
	}
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatTime renders t the way List's ServerInfo/ProcessOut views do:
// "YYYY-MM-DD HH:MM:SS" local, or "" for the zero value.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
