// Package models contains the shared data types for cluster entities,
// history samples, and poll-cycle snapshots used throughout pvebot.
package models

import (
	"strings"
	"time"
)

// EntityStatus is the normalized lifecycle state of a node or guest.
type EntityStatus string

const (
	StatusRunning EntityStatus = "running"
	StatusStopped EntityStatus = "stopped"
	StatusUnknown EntityStatus = "unknown"
)

// ParseStatus normalizes a raw API status value. Proxmox reports "running"
// and "stopped" for guests and "online"/"offline" for nodes; anything else
// maps to StatusUnknown.
func ParseStatus(raw string) EntityStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "online":
		return StatusRunning
	case "stopped", "offline":
		return StatusStopped
	default:
		return StatusUnknown
	}
}

// NodeStatus is one cluster host as observed in a single poll cycle.
// Instances are recreated every cycle and never stored beyond it except as
// derived history entries.
type NodeStatus struct {
	Name     string       `json:"name"`
	Status   EntityStatus `json:"status"`
	CPU      float64      `json:"cpu"`
	MemUsed  uint64       `json:"mem_used"`
	MemTotal uint64       `json:"mem_total"`
	Uptime   int64        `json:"uptime"`
}

// GuestStatus is one VM or container as observed in a single poll cycle.
// Guests are keyed by display name across history and notify lookups; the
// numeric VMID is carried for display only.
type GuestStatus struct {
	VMID    int          `json:"vmid"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Node    string       `json:"node"`
	Status  EntityStatus `json:"status"`
	CPU     float64      `json:"cpu"`
	MemUsed uint64       `json:"mem_used"`
	MemMax  uint64       `json:"mem_max"`
	Uptime  int64        `json:"uptime"`
}

// HistoryEntry is one sampled point of an entity's cpu/memory series.
type HistoryEntry struct {
	Time time.Time `json:"time"`
	CPU  float64   `json:"cpu"`
	Mem  float64   `json:"mem"`
}

// ClusterSnapshot is the full cluster state captured by one poll cycle.
type ClusterSnapshot struct {
	Nodes  []NodeStatus  `json:"nodes"`
	Guests []GuestStatus `json:"guests"`
	Taken  time.Time     `json:"taken"`
}

// MemoryFraction returns used/max clamped to [0,1]. A zero max yields 0 so
// entities without a memory ceiling never produce a division failure.
func MemoryFraction(used, max uint64) float64 {
	if max == 0 {
		return 0
	}
	f := float64(used) / float64(max)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
