package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/infrastructure"
	"github.com/Raikerian/meetingmind-streamer/internal/transport"
	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

const eventBuffer = 64

var (
	// ErrNotStreaming is returned by control sends outside the streaming state.
	ErrNotStreaming = errors.New("protocol: not streaming")
	// ErrAlreadyConnected is returned by Connect while a connection is in progress or live.
	ErrAlreadyConnected = errors.New("protocol: already connected")
	// ErrClosedDuringConnect is returned when Close races an in-flight Connect.
	ErrClosedDuringConnect = errors.New("protocol: closed during connect")
)

// State of the protocol client.
type State int

const (
	StateDisconnected State = iota
	StateHandshaking
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags an Event delivered to the session owner.
type EventKind int

const (
	EventPartial EventKind = iota
	EventFinal
	EventStopped
	EventClosed
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventStopped:
		return "stopped"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a decoded server message or a connection termination.
type Event struct {
	Kind      EventKind
	Text      string
	Speaker   string
	Timestamp time.Time
	Code      int
	Reason    string
	Err       error
}

// Options tune one connection.
type Options struct {
	UseRemoteProcessing bool
}

// Client speaks the session protocol over one transport connection at a time.
// The connection itself is never exposed.
type Client struct {
	logger  *zap.Logger
	dialer  transport.Dialer
	url     string
	metrics *infrastructure.Metrics
	now     func() time.Time

	mu    sync.Mutex
	state State
	link  *link
}

// NewClient creates a client that dials url for every Connect.
func NewClient(logger *zap.Logger, dialer transport.Dialer, url string, metrics *infrastructure.Metrics) *Client {
	return &Client{
		logger:  logger.Named("protocol"),
		dialer:  dialer,
		url:     url,
		metrics: metrics,
		now:     time.Now,
	}
}

// State returns the current protocol state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connect dials, waits for the transport to open, sends the handshake and starts dispatching.
// The returned channel is closed once the connection ends.
func (c *Client) Connect(ctx context.Context, sessionID string, opts Options) (<-chan Event, error) {
	c.mu.Lock()
	if c.state == StateHandshaking || c.state == StateStreaming {
		c.mu.Unlock()

		return nil, ErrAlreadyConnected
	}
	c.state = StateHandshaking
	c.link = nil
	c.mu.Unlock()

	logger := c.logger.With(zap.String("session_id", sessionID))

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.setState(StateClosed)

		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := awaitOpen(ctx, conn); err != nil {
		_ = conn.Close()
		c.setState(StateClosed)

		return nil, err
	}

	handshake, err := json.Marshal(Handshake{
		SessionID:           sessionID,
		SampleRate:          audio.TargetSampleRate,
		UseRemoteProcessing: opts.UseRemoteProcessing,
	})
	if err != nil {
		_ = conn.Close()
		c.setState(StateClosed)

		return nil, fmt.Errorf("encode handshake: %w", err)
	}
	if err := conn.SendText(handshake); err != nil {
		_ = conn.Close()
		c.setState(StateClosed)

		return nil, fmt.Errorf("send handshake: %w", err)
	}

	l := &link{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.state != StateHandshaking {
		c.mu.Unlock()
		_ = conn.Close()

		return nil, ErrClosedDuringConnect
	}
	c.state = StateStreaming
	c.link = l
	c.mu.Unlock()

	logger.Info("Stream handshake sent", zap.Bool("use_remote_processing", opts.UseRemoteProcessing))

	go c.dispatch(l)

	return l.events, nil
}

// SendAudio sends one chunk as a binary frame. Chunks are dropped silently when not streaming.
func (c *Client) SendAudio(chunk audio.PCMChunk) {
	l := c.streamingLink()
	if l == nil || !l.conn.IsOpen() {
		c.metrics.ChunkDropped()

		return
	}

	if err := l.conn.SendBinary(chunk); err != nil {
		l.logger.Debug("Dropping audio chunk", zap.Int("bytes", len(chunk)), zap.Error(err))
		c.metrics.ChunkDropped()

		return
	}
	c.metrics.ChunkSent(len(chunk))
}

// SendStop asks the server to finish. It does not wait for the acknowledgment.
func (c *Client) SendStop() error {
	l := c.streamingLink()
	if l == nil {
		return ErrNotStreaming
	}

	return l.sendControl(TypeStop)
}

// SendPong answers a heartbeat. Dispatch already does this for every ping.
func (c *Client) SendPong() error {
	l := c.streamingLink()
	if l == nil {
		return ErrNotStreaming
	}

	return l.sendControl(TypePong)
}

// Close tears down the current connection. Safe to call in any state and more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	if c.state != StateDisconnected {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if l == nil {
		return nil
	}

	return l.shutdown()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) streamingLink() *link {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStreaming {
		return nil
	}

	return c.link
}

// detach marks l's connection as over if it is still the current one.
func (c *Client) detach(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
		c.state = StateClosed
	}
	c.mu.Unlock()
}

func (c *Client) dispatch(l *link) {
	defer close(l.events)

	for ev := range l.conn.Events() {
		switch ev.Kind {
		case transport.EventMessage:
			if stop := c.handleMessage(l, ev); stop {
				return
			}
		case transport.EventClosed:
			l.logger.Info("Stream closed by peer", zap.Int("code", ev.Code), zap.String("reason", ev.Reason))
			c.detach(l)
			l.emit(Event{Kind: EventClosed, Code: ev.Code, Reason: ev.Reason})
			_ = l.shutdown()

			return
		case transport.EventFailed:
			l.logger.Warn("Stream failed", zap.Error(ev.Err))
			c.detach(l)
			l.emit(Event{Kind: EventFailed, Err: ev.Err})
			_ = l.shutdown()

			return
		case transport.EventOpened:
		}
	}

	c.detach(l)
}

// handleMessage applies one inbound frame and reports whether dispatch should end.
func (c *Client) handleMessage(l *link, ev transport.Event) bool {
	if ev.Binary {
		l.logger.Debug("Ignoring binary frame from server", zap.Int("bytes", len(ev.Payload)))

		return false
	}

	var msg inbound
	if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.Type == "" {
		l.logger.Warn("Dropping malformed message", zap.ByteString("payload", truncate(ev.Payload)), zap.Error(err))
		c.metrics.MalformedMessage()

		return false
	}

	switch msg.Type {
	case TypePartial:
		l.emit(Event{Kind: EventPartial, Text: msg.Text})
	case TypeFinal:
		l.emit(Event{
			Kind:      EventFinal,
			Text:      msg.Text,
			Speaker:   msg.speaker(),
			Timestamp: msg.time(c.now()),
		})
	case TypeStopped:
		l.logger.Info("Server finished processing")
		c.detach(l)
		l.emit(Event{Kind: EventStopped})
		_ = l.shutdown()

		return true
	case TypePing:
		if err := l.sendControl(TypePong); err != nil {
			l.logger.Warn("Failed to answer heartbeat", zap.Error(err))
		} else {
			c.metrics.HeartbeatAnswered()
		}
	default:
		l.logger.Debug("Ignoring unknown message type", zap.String("type", msg.Type))
	}

	return false
}

func awaitOpen(ctx context.Context, conn transport.Conn) error {
	select {
	case ev, ok := <-conn.Events():
		if !ok {
			return errors.New("transport closed before open")
		}
		switch ev.Kind {
		case transport.EventOpened:
			return nil
		case transport.EventFailed:
			return fmt.Errorf("transport failed before open: %w", ev.Err)
		default:
			return fmt.Errorf("transport %s before open", ev.Kind)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(p []byte) []byte {
	const limit = 256
	if len(p) > limit {
		return p[:limit]
	}

	return p
}

// link is one live connection and its outbound event stream.
type link struct {
	conn   transport.Conn
	logger *zap.Logger
	events chan Event
	done   chan struct{}
	once   sync.Once
	err    error
}

func (l *link) sendControl(typ string) error {
	payload, err := json.Marshal(control{Type: typ})
	if err != nil {
		return err
	}

	return l.conn.SendText(payload)
}

// emit delivers ev unless the owner already shut the link down.
func (l *link) emit(ev Event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

func (l *link) shutdown() error {
	l.once.Do(func() {
		close(l.done)
		l.err = l.conn.Close()
	})

	return l.err
}
