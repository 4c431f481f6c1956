// Package transporttest provides an in-memory transport for protocol and session tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/Raikerian/meetingmind-streamer/internal/transport"
)

const buffer = 256

// Frame is one outbound message recorded by Conn.
type Frame struct {
	Binary  bool
	Payload []byte
	At      time.Time
}

// Conn records outbound frames and lets tests inject inbound events.
type Conn struct {
	mu         sync.Mutex
	events     chan transport.Event
	sent       []Frame
	sentCh     chan Frame
	open       bool
	finished   bool
	closeCount int

	// SendErr, when set, fails every send.
	SendErr error
}

// NewConn returns an open connection whose first event is EventOpened.
func NewConn() *Conn {
	c := &Conn{
		events: make(chan transport.Event, buffer),
		sentCh: make(chan Frame, buffer*4),
		open:   true,
	}
	c.events <- transport.Event{Kind: transport.EventOpened}

	return c
}

func (c *Conn) Events() <-chan transport.Event {
	return c.events
}

func (c *Conn) SendText(p []byte) error {
	return c.record(false, p)
}

func (c *Conn) SendBinary(p []byte) error {
	return c.record(true, p)
}

func (c *Conn) record(binary bool, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return transport.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}

	f := Frame{Binary: binary, Payload: append([]byte(nil), p...), At: time.Now()}
	c.sent = append(c.sent, f)
	select {
	case c.sentCh <- f:
	default:
	}

	return nil
}

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.open
}

// Close mirrors a local close: the event channel ends without a terminal event.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCount++
	c.open = false
	c.finish()

	return nil
}

// Push injects an inbound event. It is a no-op once the connection is finished.
func (c *Conn) Push(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.events <- ev
}

// PushText injects an inbound text message.
func (c *Conn) PushText(s string) {
	c.Push(transport.Event{Kind: transport.EventMessage, Payload: []byte(s)})
}

// PeerClose simulates the server closing the connection cleanly.
func (c *Conn) PeerClose(code int, reason string) {
	c.terminate(transport.Event{Kind: transport.EventClosed, Code: code, Reason: reason})
}

// Fail simulates an abnormal drop.
func (c *Conn) Fail(err error) {
	c.terminate(transport.Event{Kind: transport.EventFailed, Err: err})
}

func (c *Conn) terminate(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	c.open = false
	c.events <- ev
	c.finish()
}

func (c *Conn) finish() {
	if !c.finished {
		c.finished = true
		close(c.events)
	}
}

// Sent returns a copy of every frame sent so far.
func (c *Conn) Sent() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Frame(nil), c.sent...)
}

// CloseCount reports how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeCount
}

// WaitSent blocks until n frames were sent in total or timeout elapses.
func (c *Conn) WaitSent(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		count := len(c.sent)
		c.mu.Unlock()
		if count >= n {
			return true
		}

		select {
		case <-c.sentCh:
		case <-deadline:
			return false
		}
	}
}

// Dialer hands out a fresh Conn per Dial.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	urls  []string

	// Err, when set, fails every Dial.
	Err error
	// Prepare, when set, may adjust each Conn before it is returned.
	Prepare func(*Conn)
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.Err != nil {
		return nil, d.Err
	}

	c := NewConn()
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.conns = append(d.conns, c)

	return c, nil
}

// Conns returns every connection handed out so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*Conn(nil), d.conns...)
}

// Last returns the most recent connection or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}

	return d.conns[len(d.conns)-1]
}

// URLs returns every dialed URL.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.urls...)
}
