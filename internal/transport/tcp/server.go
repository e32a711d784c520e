// Package tcp serves the line-based client protocol over plain TCP,
// one session per connection.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/core"
)

// maxLineLen bounds one wire line. Longer lines kill the connection.
const maxLineLen = 4096

// Session is the server's view of the per-connection state machine.
type Session interface {
	Start()
	HandleLine(raw string)
	Close()
}

// Binder creates the session for a freshly accepted connection and is
// told when the connection goes away.
type Binder interface {
	Bind(id string, transport core.Transport) Session
	Unbind(id string)
}

// Server accepts client connections and pumps lines between each socket
// and its session.
type Server struct {
	addr   string
	binder Binder
	log    zerolog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer builds a server that will listen on addr.
func NewServer(addr string, binder Binder, logger zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		binder: binder,
		log:    logger.With().Str("component", "tcp").Logger(),
	}
}

// Listen binds the socket. Call before Serve so the listen address is
// known (and failures surface) ahead of the accept loop.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")
	return nil
}

// Addr reports the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until the listener closes.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("serve called before listen")
	}

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(raw)
		}()
	}
}

// Shutdown closes the listener and waits for the per-connection
// goroutines, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConn owns one client socket: it binds a session, then runs the
// read and write loops until either side drops.
func (s *Server) handleConn(raw net.Conn) {
	id := uuid.NewString()
	conn := newConn(id, raw, s.log)
	session := s.binder.Bind(id, conn)
	defer s.binder.Unbind(id)

	s.log.Info().Str("conn", id).Str("remote", raw.RemoteAddr().String()).Msg("connection accepted")
	session.Start()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop(raw, session)
	}()
	go func() {
		errCh <- conn.writeLoop()
	}()

	err := <-errCh
	session.Close()
	conn.Close()
	<-errCh

	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug().Err(err).Str("conn", id).Msg("connection ended with error")
	}
	s.log.Info().Str("conn", id).Msg("connection closed")
}

func (s *Server) readLoop(raw net.Conn, session Session) error {
	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 512), maxLineLen)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		session.HandleLine(line)
	}
	return scanner.Err()
}
