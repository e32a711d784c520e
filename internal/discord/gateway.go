package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// envelope is the gateway wire frame: an event name and its payload.
type envelope struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// gatewayStream reads gateway frames into typed events until the
// connection drops or Close is called.
type gatewayStream struct {
	conn   *websocket.Conn
	events chan Event
	log    zerolog.Logger

	closeOnce sync.Once
	cancel    context.CancelFunc

	mu  sync.Mutex
	err error
}

var _ EventStream = (*gatewayStream)(nil)

// OpenGateway implements Client.
func (c *RESTClient) OpenGateway(ctx context.Context, token string) (EventStream, error) {
	conn, _, err := websocket.Dial(ctx, c.gatewayURL, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: map[string][]string{"Authorization": {token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &gatewayStream{
		conn:   conn,
		events: make(chan Event, 16),
		log:    c.log.With().Str("component", "discord_gateway").Logger(),
		cancel: cancel,
	}
	go s.readLoop(streamCtx)
	return s, nil
}

// Events implements EventStream.
func (s *gatewayStream) Events() <-chan Event {
	return s.events
}

// Err implements EventStream.
func (s *gatewayStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements EventStream. Safe to call more than once and after
// the stream has already ended.
func (s *gatewayStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "closing")
	})
	return nil
}

func (s *gatewayStream) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		var frame envelope
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.setErr(err)
				s.log.Warn().Err(err).Msg("gateway read failed")
			}
			s.Close()
			return
		}

		ev, err := decodeEvent(frame)
		if err != nil {
			// One bad frame must not kill the stream.
			s.log.Warn().Err(err).Str("type", frame.Type).Msg("dropping undecodable event")
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			s.Close()
			return
		}
	}
}

func (s *gatewayStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func decodeEvent(frame envelope) (Event, error) {
	switch frame.Type {
	case "READY":
		var ev ReadyEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "GUILD_CREATE":
		var ev GuildCreateEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "MESSAGE_CREATE":
		var ev MessageCreateEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "PRESENCE_UPDATE":
		var ev PresenceUpdateEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return UnknownEvent{Type: frame.Type}, nil
	}
}
