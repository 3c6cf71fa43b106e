package server

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
)

// captureSink records appended events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *captureSink) Append(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) kinds() []model.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.EventKind, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Kind
	}
	return out
}

// queued drains everything currently sitting in a stopped session's
// outbound queue.
func queued(s *Session) []string {
	var out []string
	for {
		select {
		case line := <-s.outbound:
			out = append(out, line)
		default:
			return out
		}
	}
}

func newTestRouter(echo bool) (*Router, *Registry, *Metrics, *captureSink) {
	registry := NewRegistry()
	metrics := NewMetrics()
	events := &captureSink{}
	return NewRouter(registry, metrics, events, echo), registry, metrics, events
}

func TestRouterBroadcastExcludesSender(t *testing.T) {
	rt, registry, metrics, events := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	carol := newTestSession("carol")
	for _, s := range []*Session{alice, bob, carol} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdBroadcast, Text: "hello"})

	if got := queued(alice); len(got) != 0 {
		t.Fatalf("sender received own broadcast: %v", got)
	}
	want := []string{"alice: hello"}
	for _, s := range []*Session{bob, carol} {
		if diff := cmp.Diff(want, queued(s)); diff != "" {
			t.Fatalf("%s delivery mismatch (-want +got):\n%s", s.Username(), diff)
		}
	}
	if got := metrics.MessagesSent.Load(); got != 1 {
		t.Fatalf("MessagesSent: got %d, want 1", got)
	}
	if got := metrics.BroadcastsSent.Load(); got != 1 {
		t.Fatalf("BroadcastsSent: got %d, want 1", got)
	}
	if diff := cmp.Diff([]model.EventKind{model.EventBroadcast}, events.kinds()); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterBroadcastEchoMode(t *testing.T) {
	rt, registry, _, _ := newTestRouter(true)
	alice := newTestSession("alice")
	if err := registry.Register(alice); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdBroadcast, Text: "hi"})

	if diff := cmp.Diff([]string{"alice: hi"}, queued(alice)); diff != "" {
		t.Fatalf("echo delivery mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterPrivateDelivery(t *testing.T) {
	rt, registry, metrics, events := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	carol := newTestSession("carol")
	for _, s := range []*Session{alice, bob, carol} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdPrivate, Target: "bob", Text: "psst"})

	if diff := cmp.Diff([]string{"[private] alice: psst"}, queued(bob)); diff != "" {
		t.Fatalf("recipient mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"[private] to bob: psst"}, queued(alice)); diff != "" {
		t.Fatalf("sender confirmation mismatch (-want +got):\n%s", diff)
	}
	if got := queued(carol); len(got) != 0 {
		t.Fatalf("third party received private message: %v", got)
	}
	if got := metrics.PrivatesSent.Load(); got != 1 {
		t.Fatalf("PrivatesSent: got %d, want 1", got)
	}
	if diff := cmp.Diff([]model.EventKind{model.EventPrivate}, events.kinds()); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterPrivateUnknownTarget(t *testing.T) {
	rt, registry, metrics, events := newTestRouter(false)
	alice := newTestSession("alice")
	if err := registry.Register(alice); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdPrivate, Target: "ghost", Text: "boo"})

	if diff := cmp.Diff([]string{"[server] user not found: ghost"}, queued(alice)); diff != "" {
		t.Fatalf("sender notice mismatch (-want +got):\n%s", diff)
	}
	if got := metrics.MessagesSent.Load(); got != 0 {
		t.Fatalf("MessagesSent after failed private: got %d, want 0", got)
	}
	if diff := cmp.Diff([]model.EventKind{model.EventError}, events.kinds()); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterListAndStats(t *testing.T) {
	rt, registry, metrics, _ := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	for _, s := range []*Session{bob, alice} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}
	metrics.MessagesSent.Store(7)

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdListUsers})
	got := queued(alice)
	if len(got) != 1 || got[0] != "[server] connected users: alice, bob" {
		t.Fatalf("list reply: got %v", got)
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdStats})
	got = queued(alice)
	if len(got) != 1 {
		t.Fatalf("stats reply: got %v", got)
	}
	if !strings.Contains(got[0], "active users: 2") || !strings.Contains(got[0], "total messages: 7") {
		t.Fatalf("stats content: got %q", got[0])
	}
}

func TestRouterHelpAndUnknown(t *testing.T) {
	rt, registry, _, events := newTestRouter(false)
	alice := newTestSession("alice")
	if err := registry.Register(alice); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdHelp})
	if diff := cmp.Diff(helpLines, queued(alice)); diff != "" {
		t.Fatalf("help lines mismatch (-want +got):\n%s", diff)
	}

	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdUnknown, Text: "/frobnicate"})
	got := queued(alice)
	if len(got) != 1 || !strings.Contains(got[0], "unrecognized") {
		t.Fatalf("unknown command reply: got %v", got)
	}
	if diff := cmp.Diff([]model.EventKind{model.EventError}, events.kinds()); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestRouterDisconnect(t *testing.T) {
	rt, registry, _, _ := newTestRouter(false)
	alice := newTestSession("alice")
	if err := registry.Register(alice); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdDisconnect}) {
		t.Fatalf("Dispatch disconnect: got quit=false, want true")
	}
	if got := queued(alice); len(got) != 0 {
		t.Fatalf("disconnect should not enqueue, got %v", got)
	}
}

func TestRouterBroadcastToClosedSession(t *testing.T) {
	rt, registry, metrics, _ := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	for _, s := range []*Session{alice, bob} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}
	bob.Close()

	// Must not panic, and the broadcast still counts.
	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdBroadcast, Text: "anyone?"})
	if got := metrics.BroadcastsSent.Load(); got != 1 {
		t.Fatalf("BroadcastsSent: got %d, want 1", got)
	}
}

func TestRouterPrivateToClosingSession(t *testing.T) {
	rt, registry, _, _ := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	for _, s := range []*Session{alice, bob} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}

	// bob closed after lookup would have found him: delivery degrades to a
	// silent drop, never a panic.
	bob.Close()
	rt.Dispatch(alice, protocol.Command{Kind: protocol.CmdPrivate, Target: "bob", Text: "late"})

	if got := queued(alice); len(got) != 1 || !strings.HasPrefix(got[0], "[private] to bob:") {
		t.Fatalf("sender confirmation: got %v", got)
	}
}

func TestRouterAnnounceSkipsExcept(t *testing.T) {
	rt, registry, metrics, _ := newTestRouter(false)
	alice := newTestSession("alice")
	bob := newTestSession("bob")
	for _, s := range []*Session{alice, bob} {
		if err := registry.Register(s); err != nil {
			t.Fatalf("Register %s: %v", s.Username(), err)
		}
	}

	rt.Announce("alice has joined the chat.", alice)

	if got := queued(alice); len(got) != 0 {
		t.Fatalf("announcement delivered to excluded session: %v", got)
	}
	if diff := cmp.Diff([]string{"[server] alice has joined the chat."}, queued(bob)); diff != "" {
		t.Fatalf("announcement mismatch (-want +got):\n%s", diff)
	}
	if got := metrics.MessagesSent.Load(); got != 0 {
		t.Fatalf("announcements must not count as messages, got %d", got)
	}
}
