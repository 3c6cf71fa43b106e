package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/NicolasHaas/linechat/pkg/crypto"
	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/store"
	"github.com/NicolasHaas/linechat/pkg/version"
)

var errAuthExhausted = errors.New("server: too many failed auth attempts")

// handshake drives the Authenticating state: it prompts for login or
// registration over the raw connection, verifies credentials against the
// account store, and claims the username in the registry. On success it
// returns a registered (not yet started) session.
//
// Each failed round (bad credentials, taken account name, or a username
// already connected elsewhere) re-prompts, up to MaxAuthAttempts. The
// session's writer is not running yet, so writing prompts directly to the
// connection here does not violate the single-writer rule.
func (s *Server) handshake(conn net.Conn, scanner *bufio.Scanner) (*Session, *model.User, error) {
	write := func(line string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_, err := conn.Write([]byte(line + "\n"))
		return err
	}
	read := func() (string, error) {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(scanner.Text()), nil
	}

	if err := write("[server] welcome to linechat " + version.String()); err != nil {
		return nil, nil, err
	}

	for attempt := 1; attempt <= s.cfg.MaxAuthAttempts; attempt++ {
		if err := write("[server] login or register? (l/r)"); err != nil {
			return nil, nil, err
		}
		mode, err := read()
		if err != nil {
			return nil, nil, err
		}

		var register bool
		switch strings.ToLower(mode) {
		case "l", "login":
			register = false
		case "r", "register":
			register = true
		default:
			s.metrics.FailedAuths.Add(1)
			if err := write("[server] please answer l or r."); err != nil {
				return nil, nil, err
			}
			continue
		}

		if err := write("[server] username:"); err != nil {
			return nil, nil, err
		}
		username, err := read()
		if err != nil {
			return nil, nil, err
		}
		if err := write("[server] password:"); err != nil {
			return nil, nil, err
		}
		password, err := read()
		if err != nil {
			return nil, nil, err
		}

		user, failMsg := s.authAttempt(register, username, password)
		if user == nil {
			s.metrics.FailedAuths.Add(1)
			if err := write("[server] " + failMsg); err != nil {
				return nil, nil, err
			}
			continue
		}

		sess := NewSession(user.Username, conn, s.cfg.QueueSize, s.cfg.WriteTimeout)
		if err := s.registry.Register(sess); err != nil {
			s.metrics.FailedAuths.Add(1)
			if err := write("[server] that user is already connected."); err != nil {
				return nil, nil, err
			}
			continue
		}

		_ = conn.SetReadDeadline(time.Time{}) // clear handshake deadline
		return sess, user, nil
	}

	_ = write("[server] too many failed attempts, closing.")
	return nil, nil, errAuthExhausted
}

// authAttempt checks one login or registration round against the store.
// It returns the account on success, or a client-safe failure message.
func (s *Server) authAttempt(register bool, username, password string) (*model.User, string) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, "invalid username: " + err.Error()
	}
	if password == "" {
		return nil, "password must not be empty"
	}

	if register {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			slog.Error("salt generation failed", "err", err)
			return nil, "internal error, try again"
		}
		user, err := s.store.CreateUser(username, crypto.HashPassword(password, salt), salt)
		if err != nil {
			if errors.Is(err, store.ErrUsernameTaken) {
				return nil, "registration failed: username already exists"
			}
			slog.Error("registration failed", "user", username, "err", err)
			return nil, "registration failed"
		}
		slog.Info("account registered", "user", username)
		return user, ""
	}

	user, err := s.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("account lookup failed", "user", username, "err", err)
		return nil, "internal error, try again"
	}
	if user == nil || !crypto.VerifyPassword(password, user.Salt, user.PassHash) {
		// One message for both cases: do not reveal which accounts exist.
		return nil, "invalid username or password"
	}
	return user, ""
}
