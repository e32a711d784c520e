package irc

// Numeric replies used by the gateway.
const (
	RplWelcome      = "001"
	RplMOTDStart    = "375"
	RplMOTD         = "372"
	RplEndOfMOTD    = "376"
	RplNoTopic      = "331"
	RplTopic        = "332"
	RplNamReply     = "353"
	RplEndOfNames   = "366"
	RplWhoisUser    = "311"
	RplEndOfWhois   = "318"
	ErrNoSuchNick   = "401"
	ErrUnknownCmd   = "421"
	ErrNotRegistred = "451"
)

// Client commands the gateway understands.
const (
	CmdPass    = "PASS"
	CmdNick    = "NICK"
	CmdUser    = "USER"
	CmdPrivmsg = "PRIVMSG"
	CmdNotice  = "NOTICE"
	CmdWhois   = "WHOIS"
	CmdPing    = "PING"
	CmdPong    = "PONG"
	CmdQuit    = "QUIT"
	CmdJoin    = "JOIN"
)

// Numeric builds a server-sourced numeric reply addressed to nick.
func Numeric(server, code, nick string, params ...string) Message {
	if nick == "" {
		nick = "*"
	}
	return Message{
		Prefix:  server,
		Command: code,
		Params:  append([]string{nick}, params...),
	}
}

// Notice builds a NOTICE from the given source to target.
func Notice(source, target, text string) Message {
	return Message{
		Prefix:  source,
		Command: CmdNotice,
		Params:  []string{target, text},
	}
}

// Privmsg builds a PRIVMSG from the given source to target.
func Privmsg(source, target, text string) Message {
	return Message{
		Prefix:  source,
		Command: CmdPrivmsg,
		Params:  []string{target, text},
	}
}

// Action wraps text in the client-to-client ACTION convention, rendered
// by clients as "* nick text".
func Action(text string) string {
	return "\x01ACTION " + text + "\x01"
}
