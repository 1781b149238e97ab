// Package sysinfo 采集当前进程的运行快照
package sysinfo

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot 运行快照
type Snapshot struct {
	Hostname   string  `json:"hostname"`
	Platform   string  `json:"platform"`
	Arch       string  `json:"arch"`
	PID        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
}

// Collect 采集运行快照
// 单项采集失败不阻断，对应字段保持零值。
func Collect() (*Snapshot, error) {
	s := &Snapshot{
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		PID:      os.Getpid(),
	}

	if hostname, err := os.Hostname(); err == nil {
		s.Hostname = hostname
	}

	proc, err := process.NewProcess(int32(s.PID))
	if err != nil {
		return s, fmt.Errorf("获取进程信息失败: %w", err)
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		s.RSS = mem.RSS
	}

	return s, nil
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("%s %s/%s pid=%d cpu=%.1f%% rss=%dMB",
		s.Hostname, s.Platform, s.Arch, s.PID, s.CPUPercent, s.RSS/1024/1024)
}
