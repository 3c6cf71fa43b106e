// Package protocol defines the newline-delimited text protocol spoken between
// LineChat clients and the server: wire limits and the command grammar parsed
// from raw client lines.
package protocol

import "strings"

const (
	// MaxLineBytes is the maximum length of a single protocol line.
	// A client exceeding it is treated as a protocol violation and dropped.
	MaxLineBytes = 4096
)

// CommandKind identifies the variant of a parsed client Command.
type CommandKind int

const (
	CmdBroadcast CommandKind = iota
	CmdPrivate
	CmdListUsers
	CmdStats
	CmdHelp
	CmdDisconnect
	CmdUnknown
)

func (k CommandKind) String() string {
	switch k {
	case CmdBroadcast:
		return "broadcast"
	case CmdPrivate:
		return "private"
	case CmdListUsers:
		return "list"
	case CmdStats:
		return "stats"
	case CmdHelp:
		return "help"
	case CmdDisconnect:
		return "disconnect"
	case CmdUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Command is one parsed client line. Immutable once parsed.
type Command struct {
	Kind   CommandKind
	Target string // private message recipient, CmdPrivate only
	Text   string // message body, or the raw line for CmdUnknown
}

// Parse turns one raw client line into a Command.
//
// Keywords are case-insensitive. A line that does not start with '/' is a
// plain broadcast; a slash-prefixed line with an unrecognized keyword, or a
// malformed /private (missing target or body), yields CmdUnknown carrying
// the raw line. Parse never fails: ok is false only for lines that are empty
// after trimming, which are silently ignored by the caller.
func Parse(raw string) (Command, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Command{}, false
	}

	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdBroadcast, Text: line}, true
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/all":
		if len(fields) < 2 {
			return Command{Kind: CmdUnknown, Text: line}, true
		}
		return Command{Kind: CmdBroadcast, Text: strings.Join(fields[1:], " ")}, true

	case "/private":
		// Needs a target and at least one body token. The target itself can
		// never contain whitespace since Fields split on it.
		if len(fields) < 3 {
			return Command{Kind: CmdUnknown, Text: line}, true
		}
		return Command{
			Kind:   CmdPrivate,
			Target: fields[1],
			Text:   strings.Join(fields[2:], " "),
		}, true

	case "/list":
		return Command{Kind: CmdListUsers}, true

	case "/stats":
		return Command{Kind: CmdStats}, true

	case "/help":
		return Command{Kind: CmdHelp}, true

	case "/disconnect", "/quit":
		return Command{Kind: CmdDisconnect}, true

	default:
		return Command{Kind: CmdUnknown, Text: line}, true
	}
}
