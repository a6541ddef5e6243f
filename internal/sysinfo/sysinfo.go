// Package sysinfo samples the bot host itself. It backs the emergency
// status command when the cluster API cannot be reached: the operator still
// gets a reading from the machine the bot runs on.
package sysinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSnapshot is one sample of the bot host's own load and memory.
type HostSnapshot struct {
	Hostname   string
	Uptime     time.Duration
	Load1      float64
	Load5      float64
	Load15     float64
	MemUsed    uint64
	MemTotal   uint64
	MemPercent float64
}

// Sample collects a HostSnapshot. Individual probe failures zero the
// affected fields rather than failing the whole sample.
func Sample(ctx context.Context) HostSnapshot {
	var snap HostSnapshot
	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = info.Hostname
		snap.Uptime = time.Duration(info.Uptime) * time.Second
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1 = avg.Load1
		snap.Load5 = avg.Load5
		snap.Load15 = avg.Load15
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsed = vm.Used
		snap.MemTotal = vm.Total
		snap.MemPercent = vm.UsedPercent
	}
	return snap
}

// String renders the snapshot as a short human-readable block.
func (s HostSnapshot) String() string {
	return fmt.Sprintf("host %s up %s\nload %.2f %.2f %.2f\nmem %.1fG/%.1fG (%.1f%%)",
		s.Hostname,
		s.Uptime.Truncate(time.Minute),
		s.Load1, s.Load5, s.Load15,
		float64(s.MemUsed)/(1<<30),
		float64(s.MemTotal)/(1<<30),
		s.MemPercent)
}
