package supervisor

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// outputLogger consumes one of a child's output streams ("out" or "err")
// to EOF on a dedicated goroutine.
type outputLogger struct {
	kind      string // "out" or "err"
	outputDir string
	redirect  bool
	log       *zap.Logger
	name      string
	pid       int
}

// run drains r to EOF, dispatching to the byte-exact rotating-file mode or
// the line-split structured-logger mode. It never propagates errors to the
// caller: mkdir/open/write failures are logged and swallowed here, and a
// read error (including EOF) ends the loop; in line-split mode a scanner
// error other than EOF is logged.
func (o *outputLogger) run(r io.Reader) {
	if o.redirect {
		o.runRedirected(r)
		return
	}
	o.runForwarded(r)
}

// runRedirected performs byte-exact, hourly-rotated file writes. It does
// not use bufio.Scanner: scanning would impose line framing this mode
// explicitly disallows.
func (o *outputLogger) runRedirected(r io.Reader) {
	var (
		file       *os.File
		activeHour string
	)
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			hour := currentHour()
			if file == nil || hour != activeHour {
				if file != nil {
					_ = file.Close()
					file = nil
				}
				f, openErr := o.openHourFile(hour)
				if openErr != nil {
					o.log.Warn("output logger: open failed, dropping chunk",
						zap.String("process", o.name), zap.String("kind", o.kind), zap.Error(openErr))
				} else {
					file = f
					activeHour = hour
				}
			}
			if file != nil {
				if _, werr := file.Write(buf[:n]); werr != nil {
					o.log.Warn("output logger: write failed, will reopen",
						zap.String("process", o.name), zap.String("kind", o.kind), zap.Error(werr))
					_ = file.Close()
					file = nil
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// openHourFile opens <output_dir>/<kind>.<hour>.log for append, creating
// parent directories as needed.
func (o *outputLogger) openHourFile(hour string) (*os.File, error) {
	if err := os.MkdirAll(o.outputDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(o.outputDir, o.kind+"."+hour+".log")
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// runForwarded line-splits the stream and emits each line through zap,
// tagged with the originating stream, pid, and process name.
func (o *outputLogger) runForwarded(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		o.log.Info(scanner.Text(),
			zap.String("from", o.kind),
			zap.Int("pid", o.pid),
			zap.String("name", o.name),
		)
	}
	if err := scanner.Err(); err != nil {
		o.log.Warn("output logger: scan error",
			zap.String("process", o.name), zap.String("kind", o.kind), zap.Error(err))
	}
}

// currentHour renders the active hourly rotation bucket as YYYYMMDDHH in
// local time.
func currentHour() string {
	return time.Now().Format("2006010215")
}
