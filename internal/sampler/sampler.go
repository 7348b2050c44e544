// Package sampler periodically measures CPU, memory and uptime for running
// plugin processes and serves aggregate host information.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/registry"
	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// Sampler polls resource usage for every running plugin on a fixed
// interval. A failed sample degrades the plugin's snapshot to absent; the
// supervisor's reaper is responsible for noticing actual process exits.
type Sampler struct {
	reg      *registry.Registry
	interval time.Duration
	log      *logger.Logger
	started  time.Time

	mu      sync.Mutex
	handles map[int32]*process.Process
}

// New creates a Sampler polling at the given interval.
func New(reg *registry.Registry, interval time.Duration, log *logger.Logger) *Sampler {
	return &Sampler{
		reg:      reg,
		interval: interval,
		log:      log.WithComponent("sampler"),
		started:  time.Now(),
		handles:  make(map[int32]*process.Process),
	}
}

// Run samples on every tick until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SampleAll()
		}
	}
}

// SampleAll takes one snapshot of every running plugin.
func (s *Sampler) SampleAll() {
	live := make(map[int32]struct{})
	for _, record := range s.reg.List() {
		if record.State() != registry.StateRunning {
			continue
		}
		pid := record.PID()
		if pid == 0 {
			continue
		}
		live[int32(pid)] = struct{}{}
		s.sample(record, int32(pid))
	}
	s.dropStaleHandles(live)
}

func (s *Sampler) sample(record *registry.Record, pid int32) {
	proc, err := s.handleFor(pid)
	if err == nil {
		var (
			cpuPercent float64
			memInfo    *process.MemoryInfoStat
		)
		cpuPercent, err = proc.Percent(0)
		if err == nil {
			memInfo, err = proc.MemoryInfo()
		}
		if err == nil {
			record.SetSample(&registry.Sample{
				CPUPercent: cpuPercent,
				MemoryRSS:  memInfo.RSS,
				SampledAt:  time.Now(),
			})
			return
		}
	}

	// Process gone between check and sample, or the platform denied the
	// read. Not fatal; the snapshot just goes stale.
	record.SetSample(nil)
	s.log.WithPlugin(record.Name()).Debug(plugerrors.NewSamplingError(record.Name(), err).Error())
}

func (s *Sampler) handleFor(pid int32) (*process.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proc, ok := s.handles[pid]; ok {
		return proc, nil
	}
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	s.handles[pid] = proc
	return proc, nil
}

// dropStaleHandles forgets cached handles for pids no longer supervised,
// so CPU deltas never cross process epochs.
func (s *Sampler) dropStaleHandles(live map[int32]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pid := range s.handles {
		if _, ok := live[pid]; !ok {
			delete(s.handles, pid)
		}
	}
}

// SystemInfo is the aggregate view served by the system endpoint.
type SystemInfo struct {
	Hostname       string  `json:"hostname"`
	OS             string  `json:"os"`
	Platform       string  `json:"platform"`
	DaemonUptime   float64 `json:"daemon_uptime_seconds"`
	PluginsTotal   int     `json:"plugins_total"`
	PluginsRunning int     `json:"plugins_running"`
	HostCPUPercent float64 `json:"host_cpu_percent"`
	MemoryTotal    uint64  `json:"memory_total"`
	MemoryUsed     uint64  `json:"memory_used"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// SystemInfo gathers host-level facts plus plugin counts. Individual probe
// failures leave their fields zeroed rather than failing the call.
func (s *Sampler) SystemInfo() SystemInfo {
	info := SystemInfo{DaemonUptime: time.Since(s.started).Seconds()}
	info.PluginsTotal, info.PluginsRunning = s.reg.Counts()

	if hostInfo, err := host.Info(); err == nil {
		info.Hostname = hostInfo.Hostname
		info.OS = hostInfo.OS
		info.Platform = hostInfo.Platform
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryPercent = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info.HostCPUPercent = percents[0]
	}
	return info
}
