// Package procstats computes best-effort process-tree memory and CPU
// figures for the HTTP surface's /api/processes response and ServerInfo
// block.
package procstats

import (
	"sort"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Tree reports RSS summed over pid and every descendant, plus the sorted
// list of descendant pids. Both are best-effort: a pid that has already
// exited, or whose /proc entries the kernel has already reclaimed,
// silently contributes zero rather than erroring the whole request.
//
// gopsutil's process list is already tgid-filtered on Linux (kernel
// threads are not enumerated as separate Process values), so walking
// Children() transitively does not double-count threads of the same
// process.
func Tree(pid int) (memMiB float64, childPIDs []int) {
	if pid <= 0 {
		return 0, nil
	}
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, nil
	}

	memMiB += rssMiB(root)

	seen := map[int32]bool{int32(pid): true}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := cur.Children()
		if err != nil {
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			childPIDs = append(childPIDs, int(child.Pid))
			memMiB += rssMiB(child)
			queue = append(queue, child)
		}
	}

	sort.Ints(childPIDs)
	return memMiB, childPIDs
}

func rssMiB(p *process.Process) float64 {
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}

// CPUPercent returns pid's CPU usage percentage as gopsutil computes it:
// total CPU time divided by wall time since the process started. 0 on any
// error.
func CPUPercent(pid int) float64 {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	pct, err := p.CPUPercent()
	if err != nil {
		return 0
	}
	return pct
}

// SystemTotals reports whole-machine totals for ServerInfo: CPU percent
// (averaged across all cores since the previous call, gopsutil's
// zero-interval mode) and total / used system memory in MiB.
func SystemTotals() (cpuPercent float64, totalMiB, usedMiB float64) {
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		totalMiB = float64(vm.Total) / (1024 * 1024)
		usedMiB = float64(vm.Used) / (1024 * 1024)
	}
	return cpuPercent, totalMiB, usedMiB
}
