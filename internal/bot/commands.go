package bot

import (
	"fmt"
	"sort"
	"strings"

	"pvebot/internal/models"
)

// CommandKind enumerates the operator commands the bot understands.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdHelp
	CmdStatus
	CmdStatusDetail
	CmdEmergency
	CmdNotifyNode
	CmdUnnotifyNode
	CmdNotifyVM
	CmdUnnotifyVM
	CmdListNotify
)

// Command is one parsed operator command.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand maps a message's literal text to a Command. Messages without
// the prefix, and prefixed text that matches nothing, parse to CmdNone. The
// emergency command requires an exact secret suffix and is disabled when no
// secret is configured.
func ParseCommand(content, prefix, emergencySecret string) Command {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}
	}
	body := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	word, arg, _ := strings.Cut(body, " ")
	arg = strings.TrimSpace(arg)

	if emergencySecret != "" && word == "status-detail-emergency-"+emergencySecret {
		return Command{Kind: CmdEmergency}
	}

	switch word {
	case "help":
		return Command{Kind: CmdHelp}
	case "status":
		return Command{Kind: CmdStatus}
	case "status-detail":
		if arg == "" {
			return Command{}
		}
		return Command{Kind: CmdStatusDetail, Arg: arg}
	case "notify_node":
		if arg == "" {
			return Command{}
		}
		return Command{Kind: CmdNotifyNode, Arg: arg}
	case "unnotify_node":
		if arg == "" {
			return Command{}
		}
		return Command{Kind: CmdUnnotifyNode, Arg: arg}
	case "notify_vm":
		if arg == "" {
			return Command{}
		}
		return Command{Kind: CmdNotifyVM, Arg: arg}
	case "unnotify_vm":
		if arg == "" {
			return Command{}
		}
		return Command{Kind: CmdUnnotifyVM, Arg: arg}
	case "listnotify":
		return Command{Kind: CmdListNotify}
	}
	return Command{}
}

func helpText(prefix string) string {
	var b strings.Builder
	b.WriteString("**pvebot commands**\n")
	fmt.Fprintf(&b, "`%shelp` — this list\n", prefix)
	fmt.Fprintf(&b, "`%sstatus` — one-line cluster summary\n", prefix)
	fmt.Fprintf(&b, "`%sstatus-detail <name>` — node/guest detail with history chart\n", prefix)
	fmt.Fprintf(&b, "`%snotify_node <name>` — alert this channel when the node stops\n", prefix)
	fmt.Fprintf(&b, "`%sunnotify_node <name>` — remove a node alert\n", prefix)
	fmt.Fprintf(&b, "`%snotify_vm <name>` — alert this channel when the guest stops\n", prefix)
	fmt.Fprintf(&b, "`%sunnotify_vm <name>` — remove a guest alert\n", prefix)
	fmt.Fprintf(&b, "`%slistnotify` — list registered alerts", prefix)
	return b.String()
}

func nodeDetailText(n models.NodeStatus) string {
	return fmt.Sprintf("**Node %s** — %s\nCPU: %.1f%%\nRAM: %.2fG / %.2fG",
		n.Name, n.Status,
		n.CPU*100,
		float64(n.MemUsed)/(1<<30),
		float64(n.MemTotal)/(1<<30))
}

func guestDetailText(g models.GuestStatus) string {
	return fmt.Sprintf("**%s %s** (id %d, on %s) — %s\nCPU: %.1f%%\nRAM: %.2fG / %.2fG",
		strings.ToUpper(g.Type), g.Name, g.VMID, g.Node, g.Status,
		g.CPU*100,
		float64(g.MemUsed)/(1<<30),
		float64(g.MemMax)/(1<<30))
}

func clusterDetailText(snap models.ClusterSnapshot) string {
	var b strings.Builder
	b.WriteString("**Cluster detail**\n")
	for _, n := range snap.Nodes {
		fmt.Fprintf(&b, "- node %s: %s, cpu %.1f%%, ram %.1fG/%.1fG\n",
			n.Name, n.Status, n.CPU*100,
			float64(n.MemUsed)/(1<<30), float64(n.MemTotal)/(1<<30))
	}
	for _, g := range snap.Guests {
		fmt.Fprintf(&b, "- %s %s (id %d, on %s): %s, cpu %.1f%%\n",
			g.Type, g.Name, g.VMID, g.Node, g.Status, g.CPU*100)
	}
	return strings.TrimRight(b.String(), "\n")
}

func listNotifyText(nodes, vms map[string]string) string {
	if len(nodes) == 0 && len(vms) == 0 {
		return "No alert registrations."
	}
	var b strings.Builder
	b.WriteString("**Registered alerts**\n")
	for _, name := range sortedKeys(nodes) {
		fmt.Fprintf(&b, "- node %s → <#%s>\n", name, nodes[name])
	}
	for _, name := range sortedKeys(vms) {
		fmt.Fprintf(&b, "- vm %s → <#%s>\n", name, vms[name])
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
