// Package wsclient is the client side of the signaling websocket.
package wsclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/teamvoice/internal/core"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Transport implements core.Transport over one gorilla connection.
type Transport struct {
	conn     *websocket.Conn
	incoming chan core.Frame
	outgoing chan core.Frame
	done     chan struct{}
	once     sync.Once
}

// Dial connects to a ws:// or wss:// signaling endpoint.
func Dial(ctx context.Context, serverURL string) (*Transport, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return newTransport(conn), nil
}

func newTransport(conn *websocket.Conn) *Transport {
	t := &Transport{
		conn:     conn,
		incoming: make(chan core.Frame, sendBuffer),
		outgoing: make(chan core.Frame, sendBuffer),
		done:     make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.readPump()
	go t.writePump()
	return t
}

// Send queues a text frame. It blocks while the queue is full and fails once
// the transport is closed.
func (t *Transport) Send(f core.Frame) error {
	select {
	case <-t.done:
		return core.ErrConnectionClosed
	default:
	}
	select {
	case t.outgoing <- f:
		return nil
	case <-t.done:
		return core.ErrConnectionClosed
	}
}

func (t *Transport) Incoming() <-chan core.Frame { return t.incoming }

func (t *Transport) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *Transport) readPump() {
	defer func() {
		t.Close()
		_ = t.conn.Close()
		close(t.incoming)
	}()

	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "wsclient").Msg("read")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case t.incoming <- core.Frame(data):
		case <-t.done:
			return
		}
	}
}

func (t *Transport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = t.conn.Close()
	}()

	for {
		select {
		case f := <-t.outgoing:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, f); err != nil {
				log.Debug().Err(err).Str("module", "wsclient").Msg("write")
				t.Close()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}
		case <-t.done:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
