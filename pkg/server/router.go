package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
	"github.com/NicolasHaas/linechat/pkg/sink"
)

var helpLines = []string{
	"[server] commands:",
	"[server]   /all <message>                - broadcast (or just type the message)",
	"[server]   /private <username> <message> - send a private message",
	"[server]   /list                         - list connected users",
	"[server]   /stats                        - show server statistics",
	"[server]   /help                         - show this help",
	"[server]   /disconnect (or /quit)        - leave the chat",
}

// Router decides message fan-out for parsed commands. All delivery goes
// through session outbound queues; the router never touches a transport
// directly.
type Router struct {
	registry *Registry
	metrics  *Metrics
	events   sink.Sink
	echo     bool // deliver broadcasts back to their sender
}

// NewRouter creates a router over the given registry, metrics, and event sink.
func NewRouter(registry *Registry, metrics *Metrics, events sink.Sink, echo bool) *Router {
	return &Router{
		registry: registry,
		metrics:  metrics,
		events:   events,
		echo:     echo,
	}
}

// Dispatch routes one command from sender. It reports whether the sender
// requested to disconnect, in which case the caller tears the session down
// and no further commands are processed.
func (rt *Router) Dispatch(sender *Session, cmd protocol.Command) (quit bool) {
	switch cmd.Kind {
	case protocol.CmdBroadcast:
		rt.broadcast(sender, cmd.Text)

	case protocol.CmdPrivate:
		rt.private(sender, cmd.Target, cmd.Text)

	case protocol.CmdListUsers:
		names := rt.registry.Usernames()
		sender.Send("[server] connected users: " + strings.Join(names, ", "))

	case protocol.CmdStats:
		sender.Send(rt.statsLine())

	case protocol.CmdHelp:
		for _, line := range helpLines {
			sender.Send(line)
		}

	case protocol.CmdDisconnect:
		return true

	case protocol.CmdUnknown:
		sender.Send("[server] unrecognized or malformed command (try /help)")
		rt.events.Append(model.Error("command", fmt.Sprintf("%s: %s", sender.Username(), cmd.Text)))
	}
	return false
}

// broadcast fans text out to every registered session. The sender is
// excluded unless echo mode is on.
func (rt *Router) broadcast(sender *Session, text string) {
	line := sender.Username() + ": " + text
	for _, sess := range rt.registry.Sessions() {
		if !rt.echo && sess == sender {
			continue
		}
		if !sess.Send(line) {
			slog.Debug("broadcast dropped", "to", sess.Username(), "from", sender.Username())
		}
	}
	rt.events.Append(model.Broadcast(sender.Username(), text))
	rt.metrics.MessagesSent.Add(1)
	rt.metrics.BroadcastsSent.Add(1)
}

// private delivers text to exactly one recipient. A missing target notifies
// the sender only; no other session is affected and the message counter is
// untouched.
func (rt *Router) private(sender *Session, target, text string) {
	recipient, ok := rt.registry.Lookup(target)
	if !ok {
		sender.Send("[server] user not found: " + target)
		rt.events.Append(model.Error("route", fmt.Sprintf("private target %q not found (from %s)", target, sender.Username())))
		return
	}
	recipient.Send("[private] " + sender.Username() + ": " + text)
	sender.Send("[private] to " + target + ": " + text)
	rt.events.Append(model.Private(sender.Username(), target, text))
	rt.metrics.MessagesSent.Add(1)
	rt.metrics.PrivatesSent.Add(1)
}

// Announce sends a server-authored notice to every session except one
// (usually the subject of the announcement). Announcements are not chat
// messages and do not count toward message statistics.
func (rt *Router) Announce(text string, except *Session) {
	line := "[server] " + text
	for _, sess := range rt.registry.Sessions() {
		if sess == except {
			continue
		}
		sess.Send(line)
	}
}

func (rt *Router) statsLine() string {
	uptime := time.Since(rt.metrics.StartTime()).Truncate(time.Second)
	return fmt.Sprintf("[server] stats: active users: %d, total messages: %d, uptime: %s",
		rt.registry.Count(), rt.metrics.MessagesSent.Load(), uptime)
}
