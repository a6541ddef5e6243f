// Package bot is the Discord surface: it owns the gateway session, keeps
// the presence string current, delivers stop alerts, and answers operator
// commands.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"pvebot/internal/chart"
	"pvebot/internal/models"
	"pvebot/internal/monitor"
	"pvebot/internal/store"
	"pvebot/internal/sysinfo"
	"pvebot/internal/utils"
)

// reply is the outcome of executing one command: text plus an optional PNG
// attachment.
type reply struct {
	text     string
	png      []byte
	filename string
}

// Bot wires the Discord session to the monitor, stores, and cluster client.
type Bot struct {
	session *discordgo.Session
	log     *utils.Logger

	prefix string
	secret string

	source  monitor.StatusSource
	history *store.HistoryStore
	notify  *store.NotifyStore

	// mon is attached after construction: the monitor needs the bot as
	// its Announcer before it exists.
	mon *monitor.Monitor
}

// New builds the bot and registers its gateway handlers. The session is not
// opened yet.
func New(token, prefix, secret string, source monitor.StatusSource, history *store.HistoryStore, notify *store.NotifyStore, log *utils.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("bot: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &Bot{
		session: session,
		log:     log,
		prefix:  prefix,
		secret:  secret,
		source:  source,
		history: history,
		notify:  notify,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessage)
	return b, nil
}

// AttachMonitor gives the bot read access to the poller's snapshot. Must be
// called before Open.
func (b *Bot) AttachMonitor(m *monitor.Monitor) {
	b.mon = m
}

// Open connects to the gateway. A rejected login is returned as an error so
// the caller can exit with a message.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("bot: discord login failed: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Writef("logged in as %s#%s", r.User.Username, r.User.Discriminator)
}

// SetPresence implements monitor.Announcer. Degraded cycles switch the bot
// to do-not-disturb so the failure is visible at a glance.
func (b *Bot) SetPresence(summary string, degraded bool) {
	status := string(discordgo.StatusOnline)
	if degraded {
		status = string(discordgo.StatusDoNotDisturb)
	}
	err := b.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: status,
		Activities: []*discordgo.Activity{
			{Name: summary, Type: discordgo.ActivityTypeGame},
		},
	})
	if err != nil {
		b.log.Writef("presence update failed: %v", err)
	}
}

// SendAlert implements monitor.Announcer.
func (b *Bot) SendAlert(channelID string, alert monitor.Alert) {
	embed := &discordgo.MessageEmbed{
		Title:       alert.Title,
		Description: alert.Message,
		Color:       alert.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "pvebot"},
	}
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.log.Writef("alert to channel %s failed: %v", channelID, err)
	}
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	cmd := ParseCommand(m.Content, b.prefix, b.secret)
	if cmd.Kind == CmdNone {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r := b.execute(ctx, cmd, m.ChannelID)
	if r.text == "" && len(r.png) == 0 {
		return
	}

	msg := &discordgo.MessageSend{Content: r.text}
	if len(r.png) > 0 {
		msg.Files = []*discordgo.File{{
			Name:        r.filename,
			ContentType: "image/png",
			Reader:      bytes.NewReader(r.png),
		}}
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, msg); err != nil {
		b.log.Writef("reply to channel %s failed: %v", m.ChannelID, err)
	}
}

// execute runs one command against the monitor, stores, and cluster client.
// Cluster API failures become chat replies here rather than log-only events.
func (b *Bot) execute(ctx context.Context, cmd Command, channelID string) reply {
	switch cmd.Kind {
	case CmdHelp:
		return reply{text: helpText(b.prefix)}
	case CmdStatus:
		return b.execStatus(ctx)
	case CmdStatusDetail:
		return b.execStatusDetail(ctx, cmd.Arg)
	case CmdEmergency:
		return b.execEmergency(ctx)
	case CmdNotifyNode:
		if err := b.notify.RegisterNode(cmd.Arg, channelID); err != nil {
			return reply{text: fmt.Sprintf("Could not register %q: %v", cmd.Arg, err)}
		}
		return reply{text: fmt.Sprintf("Alerting this channel when node **%s** stops.", cmd.Arg)}
	case CmdUnnotifyNode:
		removed, err := b.notify.UnregisterNode(cmd.Arg)
		if err != nil {
			return reply{text: fmt.Sprintf("Could not unregister %q: %v", cmd.Arg, err)}
		}
		if !removed {
			return reply{text: fmt.Sprintf("Node **%s** was not registered.", cmd.Arg)}
		}
		return reply{text: fmt.Sprintf("Removed alert for node **%s**.", cmd.Arg)}
	case CmdNotifyVM:
		if err := b.notify.RegisterVM(cmd.Arg, channelID); err != nil {
			return reply{text: fmt.Sprintf("Could not register %q: %v", cmd.Arg, err)}
		}
		return reply{text: fmt.Sprintf("Alerting this channel when vm **%s** stops.", cmd.Arg)}
	case CmdUnnotifyVM:
		removed, err := b.notify.UnregisterVM(cmd.Arg)
		if err != nil {
			return reply{text: fmt.Sprintf("Could not unregister %q: %v", cmd.Arg, err)}
		}
		if !removed {
			return reply{text: fmt.Sprintf("VM **%s** was not registered.", cmd.Arg)}
		}
		return reply{text: fmt.Sprintf("Removed alert for vm **%s**.", cmd.Arg)}
	case CmdListNotify:
		nodes, vms := b.notify.Entries()
		return reply{text: listNotifyText(nodes, vms)}
	}
	return reply{}
}

func (b *Bot) execStatus(ctx context.Context) reply {
	snap, ok := b.latestSnapshot(ctx)
	if !ok {
		return reply{text: "Could not reach the cluster API. Try again after the next poll cycle."}
	}
	return reply{text: monitor.Summary(snap)}
}

func (b *Bot) execStatusDetail(ctx context.Context, name string) reply {
	snap, ok := b.latestSnapshot(ctx)
	if !ok {
		return reply{text: "Could not reach the cluster API. Try again after the next poll cycle."}
	}
	var text string
	for _, n := range snap.Nodes {
		if n.Name == name {
			text = nodeDetailText(n)
			break
		}
	}
	if text == "" {
		for _, g := range snap.Guests {
			if g.Name == name {
				text = guestDetailText(g)
				break
			}
		}
	}
	if text == "" {
		return reply{text: fmt.Sprintf("No node or guest named **%s**.", name)}
	}

	png, err := chart.Render(name, b.history.Series(name))
	if err != nil {
		b.log.Writef("chart render for %q failed: %v", name, err)
		return reply{text: text}
	}
	if len(png) == 0 {
		return reply{text: text + "\n(no history recorded yet)"}
	}
	return reply{text: text, png: png, filename: chartFilename(name)}
}

// execEmergency answers with a fresh full-cluster readout, falling back to
// the bot host's own stats when the cluster API is unreachable.
func (b *Bot) execEmergency(ctx context.Context) reply {
	nodes, err := b.source.Nodes(ctx)
	if err == nil {
		var guests []models.GuestStatus
		if guests, err = b.source.Guests(ctx); err == nil {
			return reply{text: clusterDetailText(models.ClusterSnapshot{Nodes: nodes, Guests: guests})}
		}
	}
	b.log.Writef("emergency status: cluster fetch failed: %v", err)
	local := sysinfo.Sample(ctx)
	return reply{text: fmt.Sprintf("🚨 Cluster API unreachable: %v\n\nBot host readings:\n```%s```", err, local.String())}
}

// latestSnapshot prefers the poller's cached snapshot and falls back to a
// fresh fetch before the first cycle has completed.
func (b *Bot) latestSnapshot(ctx context.Context) (models.ClusterSnapshot, bool) {
	if b.mon != nil {
		if snap, ok := b.mon.Snapshot(); ok {
			return snap, true
		}
	}
	nodes, err := b.source.Nodes(ctx)
	if err != nil {
		b.log.Writef("on-demand fetch failed: %v", err)
		return models.ClusterSnapshot{}, false
	}
	guests, err := b.source.Guests(ctx)
	if err != nil {
		b.log.Writef("on-demand fetch failed: %v", err)
		return models.ClusterSnapshot{}, false
	}
	return models.ClusterSnapshot{Nodes: nodes, Guests: guests, Taken: time.Now().UTC()}, true
}

func chartFilename(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return clean + ".png"
}
