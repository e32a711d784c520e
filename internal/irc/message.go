// Package irc implements the line-oriented wire protocol spoken to
// connecting clients: message parsing, formatting, and the numeric
// replies the gateway uses.
package irc

import (
	"fmt"
	"strings"
)

// MaxLineLen is the protocol's line length cap, including the CRLF.
const MaxLineLen = 512

// Message is one wire line: an optional source prefix, a command or
// three-digit numeric, and up to 15 parameters of which the last may
// contain spaces.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseLine splits a raw line (without its CRLF) into a Message. The
// command is uppercased; empty lines return an error.
func ParseLine(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	var msg Message

	if strings.HasPrefix(line, ":") {
		idx := strings.Index(line, " ")
		if idx < 0 {
			return msg, fmt.Errorf("irc: prefix without command: %q", line)
		}
		msg.Prefix = line[1:idx]
		line = strings.TrimLeft(line[idx+1:], " ")
	}

	if line == "" {
		return msg, fmt.Errorf("irc: empty message")
	}

	var trailing string
	hasTrailing := false
	if idx := strings.Index(line, " :"); idx >= 0 {
		trailing = line[idx+2:]
		line = line[:idx]
		hasTrailing = true
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return msg, fmt.Errorf("irc: empty message")
	}
	msg.Command = strings.ToUpper(fields[0])
	msg.Params = fields[1:]
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}
	return msg, nil
}

// String renders the message as a wire line without CRLF. The last
// parameter is sent as trailing when it contains a space, is empty, or
// starts with a colon.
func (m Message) String() string {
	var sb strings.Builder
	if m.Prefix != "" {
		sb.WriteString(":")
		sb.WriteString(m.Prefix)
		sb.WriteString(" ")
	}
	sb.WriteString(m.Command)
	for i, p := range m.Params {
		sb.WriteString(" ")
		if i == len(m.Params)-1 && needsTrailing(p) {
			sb.WriteString(":")
		}
		sb.WriteString(p)
	}
	return sb.String()
}

func needsTrailing(p string) bool {
	return p == "" || strings.Contains(p, " ") || strings.HasPrefix(p, ":")
}
