// Package watcher implements a single background task that periodically
// compares each running child's executable mtime against the mtime
// captured at its last spawn, and fires a Restart when they differ. It
// polls via a ticker rather than an OS file-watch API.
package watcher

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/oh-project/procd/internal/registry"
)

// minInterval is the floor below which the watcher disables itself.
const minInterval = time.Second

// Watcher periodically sweeps reg for binaries that changed on disk.
type Watcher struct {
	reg      *registry.Registry
	interval time.Duration
	log      *zap.Logger
}

// New constructs a Watcher. Run reports (via log) and becomes a no-op if
// interval is below minInterval.
func New(reg *registry.Registry, interval time.Duration, log *zap.Logger) *Watcher {
	return &Watcher{reg: reg, interval: interval, log: log.Named("watcher")}
}

// Run blocks, sweeping reg every interval until ctx-like external process
// exit. There is no cancellation path: like the supervisors, the watcher
// runs for the lifetime of the daemon.
func (w *Watcher) Run() {
	if w.interval < minInterval {
		w.log.Info("file-change watcher disabled", zap.Duration("interval", w.interval))
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for range ticker.C {
		w.sweep()
	}
}

// sweep performs one pass over the registry's current key set.
func (w *Watcher) sweep() {
	for _, name := range w.reg.Names() {
		entry, ok := w.reg.Find(name)
		if !ok {
			continue
		}
		if !entry.Cfg.Enable() || entry.State != registry.ProcStateRunning || entry.CmdAbsPath == "" {
			continue
		}

		fi, err := os.Stat(entry.CmdAbsPath)
		if err != nil {
			w.log.Warn("cannot stat executable", zap.String("process", name), zap.Error(err))
			continue
		}

		if fi.ModTime().Equal(entry.LastModified) {
			continue
		}

		control := w.reg.GetControl(name)
		if control == nil {
			continue
		}
		select {
		case control <- registry.ControlRestart:
			w.log.Info("binary changed, restart scheduled", zap.String("process", name))
		default:
			w.log.Warn("control inbox full, restart dropped; will retry next sweep",
				zap.String("process", name))
		}
	}
}
