// Package monitor drives the fixed-interval poll cycle: fetch cluster
// state, publish the presence summary, record history, and alert registered
// channels when an entity transitions to stopped.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pvebot/internal/models"
	"pvebot/internal/store"
	"pvebot/internal/utils"
)

// StatusSource lists the cluster's nodes and guests. The Proxmox client
// implements it; tests substitute a fake.
type StatusSource interface {
	Nodes(ctx context.Context) ([]models.NodeStatus, error)
	Guests(ctx context.Context) ([]models.GuestStatus, error)
}

// Alert is one down-transition notification.
type Alert struct {
	Title   string
	Message string
	Color   int
}

// Announcer publishes presence summaries and alerts to the chat platform.
// Both are best-effort: implementations log failures and return.
type Announcer interface {
	SetPresence(summary string, degraded bool)
	SendAlert(channelID string, alert Alert)
}

// ColorDown is the embed color used for stopped-entity alerts.
const ColorDown = 0xDC2626

// presenceLimit is Discord's activity-name display limit.
const presenceLimit = 128

// Monitor owns the poll loop and all state shared with the command and web
// surfaces: the previous-status caches and the latest snapshot. One
// goroutine runs the loop; everything else reads through accessors.
type Monitor struct {
	source   StatusSource
	ann      Announcer
	history  *store.HistoryStore
	notify   *store.NotifyStore
	log      *utils.Logger
	interval time.Duration

	// broadcast, when set, receives the JSON snapshot after each
	// successful cycle (dashboard live feed).
	broadcast func([]byte)

	now func() time.Time

	mu        sync.Mutex
	lastNode  map[string]models.EntityStatus
	lastGuest map[string]models.EntityStatus
	snapshot  *models.ClusterSnapshot

	stopMu sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Monitor.
func New(source StatusSource, ann Announcer, history *store.HistoryStore, notify *store.NotifyStore, log *utils.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		source:    source,
		ann:       ann,
		history:   history,
		notify:    notify,
		log:       log,
		interval:  interval,
		now:       time.Now,
		lastNode:  make(map[string]models.EntityStatus),
		lastGuest: make(map[string]models.EntityStatus),
	}
}

// SetBroadcast wires the dashboard feed. Must be called before Start.
func (m *Monitor) SetBroadcast(fn func([]byte)) {
	m.broadcast = fn
}

// Start launches the poll loop: an immediate first cycle, then one per
// interval until Stop.
func (m *Monitor) Start() {
	m.stopMu.Lock()
	if m.stopCh != nil {
		m.stopMu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stopCh = stop
	m.stopMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		ctx := context.Background()
		m.runCycle(ctx)
		for {
			select {
			case <-ticker.C:
				m.runCycle(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the poll loop and waits for the in-flight cycle to finish.
func (m *Monitor) Stop() {
	m.stopMu.Lock()
	stop := m.stopCh
	m.stopCh = nil
	m.stopMu.Unlock()
	if stop != nil {
		close(stop)
	}
	m.wg.Wait()
}

// Snapshot returns the most recent successful cycle's cluster state.
func (m *Monitor) Snapshot() (models.ClusterSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return models.ClusterSnapshot{}, false
	}
	return *m.snapshot, true
}

// Poll runs one cycle outside the timer, e.g. to prime the snapshot.
func (m *Monitor) Poll(ctx context.Context) {
	m.runCycle(ctx)
}

// runCycle performs one poll cycle. Fetch errors degrade the presence
// string and skip the rest of the cycle; the next tick is the only retry.
func (m *Monitor) runCycle(ctx context.Context) {
	nodes, err := m.source.Nodes(ctx)
	if err != nil {
		m.failCycle(err)
		return
	}
	guests, err := m.source.Guests(ctx)
	if err != nil {
		m.failCycle(err)
		return
	}

	taken := m.now().UTC()
	snap := models.ClusterSnapshot{Nodes: nodes, Guests: guests, Taken: taken}

	m.ann.SetPresence(Summary(snap), false)
	m.recordHistory(snap)
	m.notifyTransitions(snap)

	m.mu.Lock()
	m.snapshot = &snap
	m.mu.Unlock()

	if m.broadcast != nil {
		if payload, err := json.Marshal(snap); err == nil {
			m.broadcast(payload)
		}
	}
}

func (m *Monitor) failCycle(err error) {
	m.log.Writef("poll cycle failed: %v", err)
	m.ann.SetPresence("cluster API unreachable", true)
}

// recordHistory appends one entry per observed entity and persists the
// full history document. Persistence failure is logged and otherwise
// ignored; the in-memory series stays authoritative.
func (m *Monitor) recordHistory(snap models.ClusterSnapshot) {
	for _, n := range snap.Nodes {
		m.history.Append(n.Name, models.HistoryEntry{
			Time: snap.Taken,
			CPU:  n.CPU,
			Mem:  models.MemoryFraction(n.MemUsed, n.MemTotal),
		})
	}
	seen := make(map[string]bool, len(snap.Guests))
	for _, g := range snap.Guests {
		if seen[g.Name] {
			m.log.Writef("duplicate guest name %q: history and notify lookups collide", g.Name)
		}
		seen[g.Name] = true
		m.history.Append(g.Name, models.HistoryEntry{
			Time: snap.Taken,
			CPU:  g.CPU,
			Mem:  models.MemoryFraction(g.MemUsed, g.MemMax),
		})
	}
	if err := m.history.Save(); err != nil {
		m.log.Writef("history save failed: %v", err)
	}
}

// notifyTransitions compares every entity against its cached status,
// alerting on transitions into stopped when a destination channel is
// registered, then unconditionally refreshes the cache. First observations
// are cached but never alerted.
func (m *Monitor) notifyTransitions(snap models.ClusterSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range snap.Nodes {
		prev, seen := m.lastNode[n.Name]
		if seen && prev != n.Status && n.Status == models.StatusStopped {
			if ch, ok := m.notify.NodeChannel(n.Name); ok {
				m.ann.SendAlert(ch, Alert{
					Title:   fmt.Sprintf("Node %s stopped", n.Name),
					Message: fmt.Sprintf("Node **%s** went from %s to %s.", n.Name, prev, n.Status),
					Color:   ColorDown,
				})
			}
		}
		m.lastNode[n.Name] = n.Status
	}
	for _, g := range snap.Guests {
		prev, seen := m.lastGuest[g.Name]
		if seen && prev != g.Status && g.Status == models.StatusStopped {
			if ch, ok := m.notify.VMChannel(g.Name); ok {
				m.ann.SendAlert(ch, Alert{
					Title:   fmt.Sprintf("VM %s stopped", g.Name),
					Message: fmt.Sprintf("Guest **%s** (id %d, on %s) went from %s to %s.", g.Name, g.VMID, g.Node, prev, g.Status),
					Color:   ColorDown,
				})
			}
		}
		m.lastGuest[g.Name] = g.Status
	}
}

// Summary renders the one-line presence string for a snapshot, truncated to
// the platform display limit.
func Summary(snap models.ClusterSnapshot) string {
	var (
		nodesUp  int
		guestsUp int
		cpuSum   float64
		memUsed  uint64
		memTotal uint64
	)
	for _, n := range snap.Nodes {
		if n.Status == models.StatusRunning {
			nodesUp++
		}
		cpuSum += n.CPU
		memUsed += n.MemUsed
		memTotal += n.MemTotal
	}
	for _, g := range snap.Guests {
		if g.Status == models.StatusRunning {
			guestsUp++
		}
	}
	cpuPct := 0.0
	if len(snap.Nodes) > 0 {
		cpuPct = cpuSum / float64(len(snap.Nodes)) * 100
	}
	s := fmt.Sprintf("CPU %.1f%% | RAM %.1fG/%.1fG | Nodes %d/%d | VMs %d/%d",
		cpuPct,
		float64(memUsed)/(1<<30),
		float64(memTotal)/(1<<30),
		nodesUp, len(snap.Nodes),
		guestsUp, len(snap.Guests))
	if runes := []rune(s); len(runes) > presenceLimit {
		s = string(runes[:presenceLimit])
	}
	return s
}
