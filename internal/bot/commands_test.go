package bot

import (
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    Command
	}{
		{"help", "!help", Command{Kind: CmdHelp}},
		{"status", "!status", Command{Kind: CmdStatus}},
		{"status detail", "!status-detail pve1", Command{Kind: CmdStatusDetail, Arg: "pve1"}},
		{"status detail missing arg", "!status-detail", Command{}},
		{"emergency", "!status-detail-emergency-hunter2", Command{Kind: CmdEmergency}},
		{"emergency wrong secret", "!status-detail-emergency-wrong", Command{}},
		{"notify node", "!notify_node host1", Command{Kind: CmdNotifyNode, Arg: "host1"}},
		{"unnotify node", "!unnotify_node host1", Command{Kind: CmdUnnotifyNode, Arg: "host1"}},
		{"notify vm", "!notify_vm web01", Command{Kind: CmdNotifyVM, Arg: "web01"}},
		{"unnotify vm", "!unnotify_vm web01", Command{Kind: CmdUnnotifyVM, Arg: "web01"}},
		{"listnotify", "!listnotify", Command{Kind: CmdListNotify}},
		{"no prefix", "status", Command{}},
		{"plain chatter", "hello there", Command{}},
		{"unknown command", "!frobnicate", Command{}},
		{"extra whitespace", "!status-detail   pve1  ", Command{Kind: CmdStatusDetail, Arg: "pve1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCommand(tc.content, "!", "hunter2")
			if got != tc.want {
				t.Fatalf("ParseCommand(%q) = %+v, want %+v", tc.content, got, tc.want)
			}
		})
	}
}

func TestParseCommandEmergencyDisabledWithoutSecret(t *testing.T) {
	got := ParseCommand("!status-detail-emergency-", "!", "")
	if got.Kind != CmdNone {
		t.Fatalf("emergency command must be disabled when no secret is configured, got %+v", got)
	}
}

func TestParseCommandCustomPrefix(t *testing.T) {
	if got := ParseCommand("pve!status", "pve!", ""); got.Kind != CmdStatus {
		t.Fatalf("custom prefix not honored, got %+v", got)
	}
	if got := ParseCommand("!status", "pve!", ""); got.Kind != CmdNone {
		t.Fatalf("default prefix must not match under a custom prefix, got %+v", got)
	}
}

func TestListNotifyTextEmpty(t *testing.T) {
	got := listNotifyText(map[string]string{}, map[string]string{})
	if !strings.Contains(got, "No alert registrations") {
		t.Fatalf("empty registrations text = %q", got)
	}
}

func TestListNotifyTextListsBothKinds(t *testing.T) {
	got := listNotifyText(
		map[string]string{"host1": "111"},
		map[string]string{"web01": "222"},
	)
	if !strings.Contains(got, "node host1") || !strings.Contains(got, "vm web01") {
		t.Fatalf("registrations text missing entries: %q", got)
	}
}

func TestHelpTextUsesPrefix(t *testing.T) {
	got := helpText("$")
	if !strings.Contains(got, "`$status`") || !strings.Contains(got, "`$listnotify`") {
		t.Fatalf("help text does not reflect the configured prefix: %q", got)
	}
}
