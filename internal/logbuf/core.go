package logbuf

import (
	"go.uber.org/zap/zapcore"
)

// Core wraps an existing zapcore.Core and fans every accepted entry out
// to a Buffer as well, so /api/logs can serve the same entries, rendered
// through the Core's own encoder, without a second logger.
type Core struct {
	zapcore.Core
	buf *Buffer
	enc zapcore.Encoder
}

// Tap builds a Core that forwards to next (the daemon's normal encoder
// pipeline) while also rendering each entry through enc and appending the
// result to buf.
func Tap(next zapcore.Core, enc zapcore.Encoder, buf *Buffer) *Core {
	return &Core{Core: next, buf: buf, enc: enc}
}

// Check delegates to the wrapped core but re-adds itself so Write is
// invoked on this wrapper, not a bare copy of next.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write renders the entry through enc, appends the line to buf, and
// forwards to the wrapped core so normal output (console/file) is
// unaffected.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err == nil {
		line := buf.String()
		if n := len(line); n > 0 && line[n-1] == '\n' {
			line = line[:n-1]
		}
		c.buf.Append(line)
		buf.Free()
	}
	return c.Core.Write(ent, fields)
}

// With returns a new Core carrying the additional fields, matching
// zapcore.Core's contract.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	return &Core{Core: c.Core.With(fields), buf: c.buf, enc: c.enc}
}
