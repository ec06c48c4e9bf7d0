package httpapi

import (
	"fmt"
	"net"
	"strings"

	"github.com/oh-project/procd/internal/procstats"
	"github.com/oh-project/procd/internal/registry"
	"github.com/oh-project/procd/pkg/hostutil"
)

// envelope is the /api/processes response shape.
type envelope struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    []ProcessOut `json:"data"`
	Server  ServerInfo   `json:"server"`
}

// ProcessOut is the Registry entry shape exposed over HTTP, extended
// with process-tree stats and the host-substituted display address.
type ProcessOut struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	State        string `json:"state"`
	ExitCode     int    `json:"exit_code,omitempty"`
	ErrMessage   string `json:"error,omitempty"`
	PID          int    `json:"pid"`
	StartTime    string `json:"start_time,omitempty"`
	ExitTime     string `json:"exit_time,omitempty"`
	StartCount   uint64 `json:"start_count"`
	LastModified string `json:"last_modified,omitempty"`
	MemoryUsed   string `json:"memory_used"`
	ChildPIDs    []int  `json:"child_pids"`
	WebAddress   string `json:"web_address,omitempty"`
}

// ServerInfo reports daemon-wide figures alongside the process list.
type ServerInfo struct {
	StartTime     string  `json:"start_time"`
	PID           int     `json:"pid"`
	MemoryUsedMiB string  `json:"memory_used"`
	CPUPercent    float64 `json:"cpu_percent"`
	TreeMemoryMiB string  `json:"tree_memory_used"`
	SystemMemMiB  string  `json:"system_memory_total"`
	SystemUsedMiB string  `json:"system_memory_used"`
	SystemCPU     float64 `json:"system_cpu_percent"`
}

// toProcessOut renders a Registry entry, substituting {HOST} in
// web_address with the request's Host header hostname (validated via
// hostutil) and filling in best-effort process-tree memory stats.
func toProcessOut(e registry.Entry, requestHost string) ProcessOut {
	memMiB, childPIDs := procstats.Tree(e.PID)

	out := ProcessOut{
		Index:        e.Index,
		Name:         e.Name,
		State:        e.State.String(),
		PID:          e.PID,
		StartTime:    registry.FormatTime(e.StartTime),
		ExitTime:     registry.FormatTime(e.ExitTime),
		StartCount:   e.StartCount,
		LastModified: registry.FormatTime(e.LastModified),
		MemoryUsed:   fmt.Sprintf("%.1f", memMiB),
		ChildPIDs:    childPIDs,
		WebAddress:   substituteHost(e.Cfg.WebAddress, requestHost),
	}
	if e.State == registry.ProcStateExited {
		out.ExitCode = e.ExitCode
	}
	if e.State == registry.ProcStateError {
		out.ErrMessage = e.ErrMessage
	}
	return out
}

// substituteHost replaces "{HOST}" in template with the validated
// hostname portion of requestHost (a Host header value, possibly
// "host:port"). On any validation failure the token is left untouched
// rather than leaking an unvalidated value into a display string.
func substituteHost(template, requestHost string) string {
	if !strings.Contains(template, "{HOST}") {
		return template
	}
	host := requestHost
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		host = h
	}
	if err := hostutil.ValidateHost(host); err != nil {
		return template
	}
	return strings.ReplaceAll(template, "{HOST}", host)
}

// apiError is the shared error-body shape for non-2xx JSON responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errBody(code int, format string, args ...any) apiError {
	return apiError{Code: code, Message: fmt.Sprintf(format, args...)}
}
