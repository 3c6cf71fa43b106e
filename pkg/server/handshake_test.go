package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/NicolasHaas/linechat/pkg/crypto"
	"github.com/NicolasHaas/linechat/pkg/store"
)

func newAuthTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AuthTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return New(cfg, Dependencies{Store: store.NewMemory()})
}

// scriptClient reads server lines from conn and answers prompts from the
// replies list, in order. It returns every line received.
func scriptClient(t *testing.T, conn net.Conn, replies []string) <-chan []string {
	t.Helper()
	out := make(chan []string, 1)
	go func() {
		var lines []string
		sc := bufio.NewScanner(conn)
		i := 0
		for sc.Scan() {
			line := sc.Text()
			lines = append(lines, line)
			if i < len(replies) && isPrompt(line) {
				if _, err := conn.Write([]byte(replies[i] + "\n")); err != nil {
					break
				}
				i++
			}
		}
		out <- lines
	}()
	return out
}

func isPrompt(line string) bool {
	return strings.Contains(line, "login or register?") ||
		strings.HasSuffix(line, "username:") ||
		strings.HasSuffix(line, "password:")
}

func TestHandshakeRegisterSuccess(t *testing.T) {
	srv := newAuthTestServer(t)
	client, srvSide := net.Pipe()
	defer client.Close()

	lines := scriptClient(t, client, []string{"r", "alice", "secret"})

	scanner := bufio.NewScanner(srvSide)
	sess, user, err := srv.handshake(srvSide, scanner)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if user.Username != "alice" || sess.Username() != "alice" {
		t.Fatalf("handshake identity: user=%q session=%q", user.Username, sess.Username())
	}
	if _, ok := srv.registry.Lookup("alice"); !ok {
		t.Fatalf("registry missing alice after handshake")
	}

	stored, err := srv.store.GetUserByUsername("alice")
	if err != nil || stored == nil {
		t.Fatalf("stored user: %v, err=%v", stored, err)
	}
	if !crypto.VerifyPassword("secret", stored.Salt, stored.PassHash) {
		t.Fatalf("stored credentials do not verify")
	}

	srvSide.Close()
	got := <-lines
	if len(got) == 0 || !strings.Contains(got[0], "welcome to linechat") {
		t.Fatalf("missing welcome banner, got %v", got)
	}
}

func TestHandshakeLoginWrongPassword(t *testing.T) {
	srv := newAuthTestServer(t)
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if _, err := srv.store.CreateUser("alice", crypto.HashPassword("right", salt), salt); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	client, srvSide := net.Pipe()
	defer client.Close()

	lines := scriptClient(t, client, []string{
		"l", "alice", "wrong",
		"l", "alice", "wrong",
		"l", "alice", "wrong",
	})

	scanner := bufio.NewScanner(srvSide)
	sess, _, err := srv.handshake(srvSide, scanner)
	if !errors.Is(err, errAuthExhausted) {
		t.Fatalf("handshake: got err=%v, want exhaustion", err)
	}
	if sess != nil {
		t.Fatalf("handshake returned a session on failure")
	}
	if got := srv.metrics.FailedAuths.Load(); got != 3 {
		t.Fatalf("FailedAuths: got %d, want 3", got)
	}
	if srv.registry.Count() != 0 {
		t.Fatalf("registry not empty after failed handshake")
	}

	srvSide.Close()
	got := <-lines
	joined := strings.Join(got, "\n")
	if !strings.Contains(joined, "invalid username or password") {
		t.Fatalf("missing auth failure notice:\n%s", joined)
	}
	if !strings.Contains(joined, "too many failed attempts") {
		t.Fatalf("missing exhaustion notice:\n%s", joined)
	}
}

func TestHandshakeRegisterTakenUsername(t *testing.T) {
	srv := newAuthTestServer(t)
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if _, err := srv.store.CreateUser("alice", crypto.HashPassword("pw", salt), salt); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	client, srvSide := net.Pipe()
	defer client.Close()

	// First round trips on the existing account, second registers fresh.
	lines := scriptClient(t, client, []string{
		"r", "alice", "pw2",
		"r", "bob", "pw2",
	})

	scanner := bufio.NewScanner(srvSide)
	sess, user, err := srv.handshake(srvSide, scanner)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if user.Username != "bob" {
		t.Fatalf("handshake user: got %q, want bob", user.Username)
	}
	if got := srv.metrics.FailedAuths.Load(); got != 1 {
		t.Fatalf("FailedAuths: got %d, want 1", got)
	}

	sess.Close()
	srvSide.Close()
	joined := strings.Join(<-lines, "\n")
	if !strings.Contains(joined, "username already exists") {
		t.Fatalf("missing duplicate account notice:\n%s", joined)
	}
}

func TestHandshakeDuplicateConnection(t *testing.T) {
	srv := newAuthTestServer(t)
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if _, err := srv.store.CreateUser("alice", crypto.HashPassword("pw", salt), salt); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := srv.registry.Register(newTestSession("alice")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	client, srvSide := net.Pipe()
	defer client.Close()

	lines := scriptClient(t, client, []string{
		"l", "alice", "pw",
		"l", "alice", "pw",
		"l", "alice", "pw",
	})

	scanner := bufio.NewScanner(srvSide)
	_, _, err = srv.handshake(srvSide, scanner)
	if !errors.Is(err, errAuthExhausted) {
		t.Fatalf("handshake: got err=%v, want exhaustion", err)
	}

	srvSide.Close()
	joined := strings.Join(<-lines, "\n")
	if !strings.Contains(joined, "already connected") {
		t.Fatalf("missing duplicate connection notice:\n%s", joined)
	}
}
