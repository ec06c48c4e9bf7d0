package supervisor

import (
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newObservedCore returns a zapcore.Core that records messages in memory,
// plus an accessor returning the recorded message strings in order.
func newObservedCore() (zapcore.Core, func() []string) {
	core, logs := observer.New(zapcore.DebugLevel)
	return core, func() []string {
		entries := logs.All()
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Message
		}
		return out
	}
}
