package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"pvebot/internal/models"
	"pvebot/internal/store"
	"pvebot/internal/utils"
)

type fakeSource struct {
	nodes  []models.NodeStatus
	guests []models.GuestStatus
	err    error
}

func (f *fakeSource) Nodes(context.Context) ([]models.NodeStatus, error) {
	return f.nodes, f.err
}

func (f *fakeSource) Guests(context.Context) ([]models.GuestStatus, error) {
	return f.guests, f.err
}

type sentAlert struct {
	channel string
	alert   Alert
}

type fakeAnnouncer struct {
	presences []string
	degraded  []bool
	alerts    []sentAlert
}

func (f *fakeAnnouncer) SetPresence(summary string, degraded bool) {
	f.presences = append(f.presences, summary)
	f.degraded = append(f.degraded, degraded)
}

func (f *fakeAnnouncer) SendAlert(channelID string, alert Alert) {
	f.alerts = append(f.alerts, sentAlert{channel: channelID, alert: alert})
}

func newTestMonitor(t *testing.T, src *fakeSource) (*Monitor, *fakeAnnouncer, *store.NotifyStore, *store.HistoryStore) {
	t.Helper()
	dir := t.TempDir()
	history := store.NewHistoryStore(filepath.Join(dir, "history.json"), 0)
	if err := history.Load(); err != nil {
		t.Fatalf("history load: %v", err)
	}
	notify := store.NewNotifyStore(filepath.Join(dir, "notify.json"))
	if err := notify.Load(); err != nil {
		t.Fatalf("notify load: %v", err)
	}
	ann := &fakeAnnouncer{}
	m := New(src, ann, history, notify, utils.NewLogger(""), time.Minute)
	return m, ann, notify, history
}

func node(name string, status models.EntityStatus) models.NodeStatus {
	return models.NodeStatus{Name: name, Status: status, CPU: 0.25, MemUsed: 4 << 30, MemTotal: 16 << 30}
}

func TestFirstObservationNeverNotifies(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusStopped)}}
	m, ann, notify, _ := newTestMonitor(t, src)
	if err := notify.RegisterNode("pve1", "chan1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.runCycle(context.Background())
	if len(ann.alerts) != 0 {
		t.Fatalf("first observation of a stopped node must not alert, got %d alerts", len(ann.alerts))
	}
}

func TestStoppedTransitionNotifiesExactlyOnce(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusRunning)}}
	m, ann, notify, _ := newTestMonitor(t, src)
	if err := notify.RegisterNode("pve1", "chan1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.runCycle(context.Background())
	src.nodes = []models.NodeStatus{node("pve1", models.StatusStopped)}
	m.runCycle(context.Background())
	if len(ann.alerts) != 1 {
		t.Fatalf("expected exactly one alert on running->stopped, got %d", len(ann.alerts))
	}
	if ann.alerts[0].channel != "chan1" {
		t.Fatalf("alert went to %q, want chan1", ann.alerts[0].channel)
	}

	// Identical status on the next cycle must not re-alert.
	m.runCycle(context.Background())
	if len(ann.alerts) != 1 {
		t.Fatalf("consecutive stopped cycles must not re-alert, got %d alerts", len(ann.alerts))
	}
}

func TestRecoveryNeverNotifies(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusStopped)}}
	m, ann, notify, _ := newTestMonitor(t, src)
	if err := notify.RegisterNode("pve1", "chan1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.runCycle(context.Background())
	src.nodes = []models.NodeStatus{node("pve1", models.StatusRunning)}
	m.runCycle(context.Background())
	if len(ann.alerts) != 0 {
		t.Fatalf("stopped->running recovery must not alert, got %d alerts", len(ann.alerts))
	}
}

func TestNoRegistrationNoAlert(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusRunning)}}
	m, ann, _, _ := newTestMonitor(t, src)

	m.runCycle(context.Background())
	src.nodes = []models.NodeStatus{node("pve1", models.StatusStopped)}
	m.runCycle(context.Background())
	if len(ann.alerts) != 0 {
		t.Fatalf("unregistered entity must not alert, got %d alerts", len(ann.alerts))
	}
}

// The three-cycle scenario: stopped first observation, recovery, then a
// registered running->stopped transition.
func TestThreeCycleScenario(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusStopped)}}
	m, ann, notify, _ := newTestMonitor(t, src)
	if err := notify.RegisterNode("pve1", "ops"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.runCycle(context.Background())
	if len(ann.alerts) != 0 {
		t.Fatalf("cycle 1: expected no alert, got %d", len(ann.alerts))
	}
	src.nodes = []models.NodeStatus{node("pve1", models.StatusRunning)}
	m.runCycle(context.Background())
	if len(ann.alerts) != 0 {
		t.Fatalf("cycle 2: expected no alert, got %d", len(ann.alerts))
	}
	src.nodes = []models.NodeStatus{node("pve1", models.StatusStopped)}
	m.runCycle(context.Background())
	if len(ann.alerts) != 1 {
		t.Fatalf("cycle 3: expected exactly one alert, got %d", len(ann.alerts))
	}
	if got := ann.alerts[0].alert.Title; got != "Node pve1 stopped" {
		t.Fatalf("alert title = %q, want it to reference pve1", got)
	}
}

func TestGuestTransitionsUseVMChannel(t *testing.T) {
	src := &fakeSource{guests: []models.GuestStatus{
		{VMID: 101, Name: "web01", Type: "qemu", Node: "pve1", Status: models.StatusRunning},
	}}
	m, ann, notify, _ := newTestMonitor(t, src)
	if err := notify.RegisterVM("web01", "vmchan"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.runCycle(context.Background())
	src.guests[0].Status = models.StatusStopped
	m.runCycle(context.Background())
	if len(ann.alerts) != 1 || ann.alerts[0].channel != "vmchan" {
		t.Fatalf("expected one guest alert to vmchan, got %+v", ann.alerts)
	}
}

func TestHistoryGrowsOncePerCyclePerEntity(t *testing.T) {
	src := &fakeSource{
		nodes:  []models.NodeStatus{node("pve1", models.StatusRunning)},
		guests: []models.GuestStatus{{VMID: 101, Name: "web01", Status: models.StatusRunning, MemUsed: 1 << 30, MemMax: 2 << 30}},
	}
	m, _, _, history := newTestMonitor(t, src)

	for i := 0; i < 3; i++ {
		m.runCycle(context.Background())
	}
	if got := history.Len("pve1"); got != 3 {
		t.Fatalf("node history length = %d, want 3", got)
	}
	if got := history.Len("web01"); got != 3 {
		t.Fatalf("guest history length = %d, want 3", got)
	}

	entries := history.Series("pve1")
	for i := 1; i < len(entries); i++ {
		if entries[i].Time.Before(entries[i-1].Time) {
			t.Fatalf("history timestamps decreased at index %d", i)
		}
	}
}

func TestZeroMemoryMaxRecordsZeroFraction(t *testing.T) {
	src := &fakeSource{guests: []models.GuestStatus{
		{VMID: 200, Name: "ct0", Type: "lxc", Status: models.StatusRunning, MemUsed: 512 << 20, MemMax: 0},
	}}
	m, _, _, history := newTestMonitor(t, src)

	m.runCycle(context.Background())
	entries := history.Series("ct0")
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	if entries[0].Mem != 0 {
		t.Fatalf("memory fraction with zero max = %v, want 0", entries[0].Mem)
	}
}

func TestFetchErrorSkipsCycle(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	m, ann, _, history := newTestMonitor(t, src)

	m.runCycle(context.Background())
	if len(ann.presences) != 1 || !ann.degraded[0] {
		t.Fatalf("failed cycle must set a degraded presence, got %+v", ann)
	}
	if _, ok := m.Snapshot(); ok {
		t.Fatalf("failed cycle must not publish a snapshot")
	}
	if names := history.EntityNames(); len(names) != 0 {
		t.Fatalf("failed cycle must not record history, got %v", names)
	}

	// Recovery on the next tick: the fake stops erroring.
	src.err = nil
	src.nodes = []models.NodeStatus{node("pve1", models.StatusRunning)}
	m.runCycle(context.Background())
	if _, ok := m.Snapshot(); !ok {
		t.Fatalf("successful cycle after failure must publish a snapshot")
	}
	if ann.degraded[len(ann.degraded)-1] {
		t.Fatalf("successful cycle must clear the degraded presence")
	}
}

func TestSummaryStaysWithinPresenceLimit(t *testing.T) {
	var nodes []models.NodeStatus
	for i := 0; i < 50; i++ {
		nodes = append(nodes, node("pve-with-a-fairly-long-hostname", models.StatusRunning))
	}
	s := Summary(models.ClusterSnapshot{Nodes: nodes})
	if len([]rune(s)) > presenceLimit {
		t.Fatalf("summary length %d exceeds presence limit %d", len([]rune(s)), presenceLimit)
	}
}

func TestBroadcastReceivesSnapshot(t *testing.T) {
	src := &fakeSource{nodes: []models.NodeStatus{node("pve1", models.StatusRunning)}}
	m, _, _, _ := newTestMonitor(t, src)
	var payloads [][]byte
	m.SetBroadcast(func(p []byte) { payloads = append(payloads, p) })

	m.runCycle(context.Background())
	if len(payloads) != 1 {
		t.Fatalf("expected one broadcast per successful cycle, got %d", len(payloads))
	}
}
