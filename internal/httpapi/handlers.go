package httpapi

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oh-project/procd/internal/httpapi/assets"
	"github.com/oh-project/procd/internal/procstats"
	"github.com/oh-project/procd/internal/registry"
)

func indexHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", assets.Index)
}

// logsHandler serves GET /api/logs: the last N (<=100) daemon log lines,
// newest first.
func logsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := 100
		if raw := c.Query("lines"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				n = parsed
			}
		}
		c.JSON(http.StatusOK, gin.H{"lines": deps.Logs.Read(n)})
	}
}

// processesHandler serves GET /api/processes.
func processesHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries := deps.Reg.List()
		out := make([]ProcessOut, 0, len(entries))
		for _, e := range entries {
			out = append(out, toProcessOut(e, c.Request.Host))
		}

		selfPID := os.Getpid()
		selfMemMiB, _ := procstats.Tree(selfPID)
		treeMemMiB := selfMemMiB
		for _, e := range entries {
			mem, _ := procstats.Tree(e.PID)
			treeMemMiB += mem
		}
		sysCPU, sysTotal, sysUsed := procstats.SystemTotals()

		c.JSON(http.StatusOK, envelope{
			Code:    0,
			Message: "success",
			Data:    out,
			Server: ServerInfo{
				StartTime:     deps.Reg.StartTime(),
				PID:           selfPID,
				MemoryUsedMiB: formatMiB(selfMemMiB),
				CPUPercent:    procstats.CPUPercent(selfPID),
				TreeMemoryMiB: formatMiB(treeMemMiB),
				SystemMemMiB:  formatMiB(sysTotal),
				SystemUsedMiB: formatMiB(sysUsed),
				SystemCPU:     sysCPU,
			},
		})
	}
}

func formatMiB(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// startHandler serves POST /api/process/:name/start: sets Ready and asks
// the Starter to launch a fresh supervisor goroutine for name.
func startHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if _, ok := deps.Reg.Find(name); !ok {
			c.JSON(http.StatusNotFound, errBody(1, "unknown process %q", name))
			return
		}
		deps.Reg.SetState(name, registry.ProcStateReady)
		if err := deps.Starter.StartProcess(name); err != nil {
			c.JSON(http.StatusConflict, errBody(1, "%v", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success"})
	}
}

// restartHandler serves POST /api/process/:name/restart.
func restartHandler(deps Deps) gin.HandlerFunc {
	return sendControl(deps, registry.ControlRestart)
}

// killHandler serves POST /api/process/:name/kill.
func killHandler(deps Deps) gin.HandlerFunc {
	return sendControl(deps, registry.ControlKill)
}

// sendControl sets Stopping and non-blockingly enqueues msg into name's
// control inbox, matching the watcher's drop-rather-than-block policy.
func sendControl(deps Deps, msg registry.ControlMsg) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if _, ok := deps.Reg.Find(name); !ok {
			c.JSON(http.StatusNotFound, errBody(1, "unknown process %q", name))
			return
		}

		deps.Reg.SetState(name, registry.ProcStateStopping)

		tx := deps.Reg.GetControl(name)
		if tx == nil {
			c.JSON(http.StatusConflict, errBody(1, "process %q has no active supervisor", name))
			return
		}

		select {
		case tx <- msg:
		default:
			c.JSON(http.StatusConflict, errBody(1, "process %q control inbox is full", name))
			return
		}

		c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success"})
	}
}
