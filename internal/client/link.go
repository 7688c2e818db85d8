package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrLinkClosed = errors.New("signaling link closed")

// Link is the WebSocket connection to the signaling server. It implements
// SignalSender for the session and feeds inbound envelopes back to it.
type Link struct {
	conn     *websocket.Conn
	outgoing chan []byte
	done     chan struct{}

	closeOnce sync.Once
}

func Dial(ctx context.Context, serverURL string) (*Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Link{
		conn:     conn,
		outgoing: make(chan []byte, 8),
		done:     make(chan struct{}),
	}, nil
}

// Send queues one envelope for the write pump.
func (l *Link) Send(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case l.outgoing <- frame:
		return nil
	case <-l.done:
		return ErrLinkClosed
	}
}

// Run drives both pumps until the connection dies or ctx ends. Inbound
// envelopes go to the session's dispatch.
func (l *Link) Run(ctx context.Context, sess *Session) error {
	go l.writePump(ctx)
	defer l.Close()

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("signaling read: %w", err)
			}
		}
		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client.link").Msg("bad frame")
			continue
		}
		sess.Handle(env)
	}
}

func (l *Link) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case frame := <-l.outgoing:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("module", "client.link").Msg("write error")
				return
			}
		case <-ticker.C:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *Link) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}
