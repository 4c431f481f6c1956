package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBuffer      = 64
	closeGracePeriod = time.Second
)

// ErrWriteTimeout is returned when a write could not complete within the write timeout.
var ErrWriteTimeout = errors.New("transport: write timed out")

type webSocketDialer struct {
	logger       *zap.Logger
	dialer       websocket.Dialer
	writeTimeout time.Duration
}

// NewWebSocketDialer returns a Dialer backed by gorilla/websocket.
// Every write, including the wait behind a write in progress, is bounded by writeTimeout.
func NewWebSocketDialer(logger *zap.Logger, writeTimeout time.Duration) Dialer {
	return &webSocketDialer{
		logger:       logger.Named("transport"),
		dialer:       *websocket.DefaultDialer,
		writeTimeout: writeTimeout,
	}
}

func (d *webSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.logger.Debug("Dialing stream endpoint", zap.String("url", url))

	ws, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return newWebSocketConn(ws, d.logger, d.writeTimeout), nil
}

type webSocketConn struct {
	ws           *websocket.Conn
	logger       *zap.Logger
	writeTimeout time.Duration

	// writing holds one token while a write is in progress.
	writing   chan struct{}
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	open      atomic.Bool
}

func newWebSocketConn(ws *websocket.Conn, logger *zap.Logger, writeTimeout time.Duration) *webSocketConn {
	c := &webSocketConn{
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		writing:      make(chan struct{}, 1),
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
	}
	c.open.Store(true)
	c.events <- Event{Kind: EventOpened}

	go c.readLoop()

	return c
}

func (c *webSocketConn) Events() <-chan Event {
	return c.events
}

func (c *webSocketConn) IsOpen() bool {
	return c.open.Load()
}

func (c *webSocketConn) SendText(p []byte) error {
	return c.write(websocket.TextMessage, p)
}

func (c *webSocketConn) SendBinary(p []byte) error {
	return c.write(websocket.BinaryMessage, p)
}

func (c *webSocketConn) write(messageType int, p []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writing <- struct{}{}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.done:
		return ErrClosed
	}
	defer func() { <-c.writing }()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := c.ws.WriteMessage(messageType, p); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// Close sends a normal close frame and releases the socket. Safe to call concurrently with writes:
// a write blocked on a stalled peer fails once the socket is closed.
func (c *webSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); werr != nil {
			c.logger.Debug("Close frame not sent", zap.Error(werr))
		}
		err = c.ws.Close()
	})

	return err
}

func (c *webSocketConn) readLoop() {
	defer close(c.events)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.open.Store(false)
			c.emit(c.terminalEvent(err))

			return
		}

		c.emit(Event{
			Kind:    EventMessage,
			Payload: data,
			Binary:  messageType == websocket.BinaryMessage,
		})
	}
}

func (c *webSocketConn) terminalEvent(err error) Event {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return Event{Kind: EventClosed, Code: closeErr.Code, Reason: closeErr.Text}
	}

	select {
	case <-c.done:
		return Event{Kind: EventClosed, Code: websocket.CloseNormalClosure, Reason: "closed locally"}
	default:
	}

	return Event{Kind: EventFailed, Err: err}
}

// emit delivers ev unless the connection was closed locally, in which case nobody is listening.
func (c *webSocketConn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
