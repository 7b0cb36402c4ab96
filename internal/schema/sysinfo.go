// Copyright (c) 2025 The WM-Telemetry Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// OSInfo identifies the host operating system.
type OSInfo struct {
	Full     string `json:"full"`
	Kernel   string `json:"kernel"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

// MemoryInfo is a snapshot of host memory pressure, field names chosen to
// match the Windows MEMORYSTATUSEX shape this agent reports on.
type MemoryInfo struct {
	MemoryLoad        uint32 `json:"memory_load"`
	TotalPhysical     uint64 `json:"total_physical"`
	AvailablePhysical uint64 `json:"available_physical"`
	TotalPageFile     uint64 `json:"total_page_file"`
	AvailablePageFile uint64 `json:"available_page_file"`
	TotalVirtual      uint64 `json:"total_virtual"`
	AvailableVirtual  uint64 `json:"available_virtual"`
}

// CPUInfo is a snapshot of aggregate CPU utilization.
type CPUInfo struct {
	Usage float64 `json:"usage"`
}

// SystemInfo is an immutable host snapshot attached to every batch of
// records emitted while it is current. serialized is computed once at
// construction and reused by every record referencing this snapshot,
// instead of re-marshaling the struct per event.
type SystemInfo struct {
	OS           OSInfo     `json:"os"`
	Memory       MemoryInfo `json:"memory"`
	CPU          CPUInfo    `json:"cpu"`
	Architecture string     `json:"architecture"`
	Hostname     string     `json:"hostname"`

	serialized []byte
}

// SerializeToBytes returns the snapshot's pre-computed JSON encoding.
// Callers must not mutate the returned slice.
func (s *SystemInfo) SerializeToBytes() []byte {
	return s.serialized
}

func newSystemInfo(os OSInfo, memory MemoryInfo, cpuInfo CPUInfo, hostname string) *SystemInfo {
	s := &SystemInfo{
		OS:           os,
		Memory:       memory,
		CPU:          cpuInfo,
		Architecture: runtime.GOARCH,
		Hostname:     hostname,
	}
	// serialized has no json tag, so marshaling s here only encodes the
	// exported fields above — this is the one time the snapshot is
	// marshaled; every later caller reuses the cached bytes.
	buf, err := json.Marshal(s)
	if err != nil {
		// Only non-serializable Go values (channels, funcs) reach this
		// path, none of which SystemInfo contains.
		panic(fmt.Sprintf("schema: marshaling SystemInfo: %v", err))
	}
	s.serialized = buf
	return s
}

// Monitor periodically refreshes a cached SystemInfo snapshot in the
// background via gopsutil, so hot-path record construction never blocks
// on a syscall.
type Monitor struct {
	current  atomic.Pointer[SystemInfo]
	interval time.Duration
}

// NewMonitor builds a Monitor and takes an initial synchronous snapshot.
func NewMonitor(ctx context.Context, refreshInterval time.Duration) (*Monitor, error) {
	m := &Monitor{interval: refreshInterval}
	snap, err := collectSystemInfo(ctx)
	if err != nil {
		return nil, err
	}
	m.current.Store(snap)
	return m, nil
}

// Current returns the most recently collected snapshot.
func (m *Monitor) Current() *SystemInfo {
	return m.current.Load()
}

// Run refreshes the snapshot on m.interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := collectSystemInfo(ctx)
			if err != nil {
				continue
			}
			m.current.Store(snap)
		}
	}
}

func collectSystemInfo(ctx context.Context) (*SystemInfo, error) {
	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting host info: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting memory info: %w", err)
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting swap info: %w", err)
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("collecting cpu percent: %w", err)
	}
	var cpuUsage float64
	if len(percents) > 0 {
		cpuUsage = percents[0]
	}

	osInfo := OSInfo{
		Full:     fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion),
		Kernel:   hostInfo.KernelVersion,
		Name:     hostInfo.Platform,
		Platform: hostInfo.PlatformFamily,
		Version:  hostInfo.PlatformVersion,
	}

	memInfo := MemoryInfo{
		MemoryLoad:        uint32(vm.UsedPercent),
		TotalPhysical:     vm.Total,
		AvailablePhysical: vm.Available,
		TotalPageFile:     swap.Total,
		AvailablePageFile: swap.Total - swap.Used,
		TotalVirtual:      vm.Total + swap.Total,
		AvailableVirtual:  vm.Available + (swap.Total - swap.Used),
	}

	return newSystemInfo(osInfo, memInfo, CPUInfo{Usage: cpuUsage}, hostInfo.Hostname), nil
}
