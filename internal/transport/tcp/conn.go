package tcp

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/irc"
)

const (
	// outboundBuffer bounds the per-connection send queue. A client that
	// stops reading loses lines past this point instead of stalling the
	// session.
	outboundBuffer = 256

	writeTimeout = 10 * time.Second
)

// Conn adapts one TCP client connection to core.Transport. Send queues
// the line for the write loop and never blocks the caller.
type Conn struct {
	id  string
	raw net.Conn
	log zerolog.Logger

	out       chan irc.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, raw net.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		id:   id,
		raw:  raw,
		log:  logger.With().Str("conn", id).Logger(),
		out:  make(chan irc.Message, outboundBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Send queues one outbound line. Lines for a closed or stalled
// connection are dropped.
func (c *Conn) Send(msg irc.Message) {
	select {
	case <-c.done:
	case c.out <- msg:
	default:
		c.log.Warn().Str("command", msg.Command).Msg("outbound queue full, dropping line")
	}
}

// Close shuts the connection down. Idempotent; pending outbound lines
// are discarded.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.raw.Close()
	})
}

// writeLoop drains the outbound queue onto the socket.
func (c *Conn) writeLoop() error {
	for {
		select {
		case msg := <-c.out:
			c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.raw.Write([]byte(msg.String() + "\r\n")); err != nil {
				return err
			}
		case <-c.done:
			return nil
		}
	}
}
