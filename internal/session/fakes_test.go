package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/meetingmind-streamer/internal/capture"
	"github.com/Raikerian/meetingmind-streamer/internal/config"
	"github.com/Raikerian/meetingmind-streamer/internal/meeting"
	"github.com/Raikerian/meetingmind-streamer/internal/protocol"
	"github.com/Raikerian/meetingmind-streamer/internal/session"
	"github.com/Raikerian/meetingmind-streamer/internal/transport/transporttest"
	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

const waitFor = 2 * time.Second

type fakeAPI struct {
	mu        sync.Mutex
	created   []meeting.CreateRequest
	stopped   []string
	next      int
	createErr error
	stopErr   error
	// entered, when set, makes Create block until its context ends.
	entered chan struct{}
}

func (a *fakeAPI) Create(ctx context.Context, req meeting.CreateRequest) (*meeting.Meeting, error) {
	a.mu.Lock()
	a.created = append(a.created, req)
	a.next++
	id := fmt.Sprintf("m-%d", a.next)
	entered, err := a.entered, a.createErr
	a.mu.Unlock()

	if entered != nil {
		close(entered)
		<-ctx.Done()

		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	return &meeting.Meeting{ID: id, Title: req.Title, Participants: req.Participants}, nil
}

func (a *fakeAPI) Stop(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = append(a.stopped, id)

	return a.stopErr
}

func (a *fakeAPI) Created() []meeting.CreateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]meeting.CreateRequest(nil), a.created...)
}

func (a *fakeAPI) Stopped() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.stopped...)
}

type fakeStream struct {
	mu     sync.Mutex
	frames chan audio.Frame
	closed bool
	closes int
}

func (s *fakeStream) Frames() <-chan audio.Frame { return s.frames }

func (s *fakeStream) SampleRate() int { return audio.TargetSampleRate }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}

	return nil
}

// Push delivers a frame unless the stream was closed.
func (s *fakeStream) Push(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.frames <- f
	}
}

func (s *fakeStream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closes
}

type fakeMic struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
	opened  []capture.Constraints
}

func (m *fakeMic) Open(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opened = append(m.opened, c)
	if m.err != nil {
		return nil, m.err
	}
	s := &fakeStream{frames: make(chan audio.Frame, 64)}
	m.streams = append(m.streams, s)

	return s, nil
}

func (m *fakeMic) Last() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.streams) == 0 {
		return nil
	}

	return m.streams[len(m.streams)-1]
}

type fakeDecoder struct {
	buf *capture.Buffer
	err error
}

func (d *fakeDecoder) Decode(context.Context, []byte) (*capture.Buffer, error) {
	return d.buf, d.err
}

// recordingSink keeps every notification for assertions.
type recordingSink struct {
	mu          sync.Mutex
	transitions [][2]session.State
	partials    []session.Entry
	finals      []session.Entry
	ticks       []time.Duration
	ended       []session.Record
	failed      []error
}

func (s *recordingSink) StateChanged(from, to session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, [2]session.State{from, to})
}

func (s *recordingSink) PartialUpdated(e session.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partials = append(s.partials, e)
}

func (s *recordingSink) EntryFinalized(e session.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, e)
}

func (s *recordingSink) Tick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, elapsed)
}

func (s *recordingSink) SessionEnded(r session.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, r)
}

func (s *recordingSink) SessionFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func (s *recordingSink) Ended() []session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]session.Record(nil), s.ended...)
}

func (s *recordingSink) Failed() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]error(nil), s.failed...)
}

func (s *recordingSink) Transitions() [][2]session.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][2]session.State(nil), s.transitions...)
}

func (s *recordingSink) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ticks)
}

type harness struct {
	ctrl    *session.Controller
	logger  *zap.Logger
	cfg     *config.Config
	api     *fakeAPI
	dialer  *transporttest.Dialer
	mic     *fakeMic
	decoder *fakeDecoder
	sink    *recordingSink
}

// newHarness wires a controller to the real protocol client over an in-memory transport.
func newHarness(t *testing.T, mutate func(h *harness)) *harness {
	t.Helper()

	h := baseHarness(mutate)

	return h.build(t, protocol.NewClient(zaptest.NewLogger(t), h.dialer, "ws://test/api/v1/ws", nil))
}

func baseHarness(mutate func(h *harness)) *harness {
	cfg := config.Default()
	cfg.Session.StopTransitionDelay = 10 * time.Millisecond
	cfg.Session.TickInterval = time.Hour

	h := &harness{
		cfg:     cfg,
		api:     &fakeAPI{},
		dialer:  &transporttest.Dialer{},
		mic:     &fakeMic{},
		decoder: &fakeDecoder{},
		sink:    &recordingSink{},
	}
	if mutate != nil {
		mutate(h)
	}

	return h
}

func (h *harness) build(t *testing.T, stream session.StreamClient) *harness {
	t.Helper()

	history, err := session.NewHistory(h.cfg.Session.HistorySize)
	require.NoError(t, err)

	logger := h.logger
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}

	h.ctrl = session.NewController(session.Params{
		Logger:     logger,
		Config:     h.cfg,
		API:        h.api,
		Stream:     stream,
		Microphone: h.mic,
		Decoder:    h.decoder,
		History:    history,
	})
	h.ctrl.Subscribe(h.sink)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		h.ctrl.Shutdown(ctx)
	})

	return h
}

func (h *harness) waitState(t *testing.T, want session.State) {
	t.Helper()

	require.Eventually(t, func() bool { return h.ctrl.State() == want }, waitFor, 2*time.Millisecond,
		"controller never reached %s, still %s", want, h.ctrl.State())
}

// scriptedStream is a StreamClient whose event channel the test owns.
type scriptedStream struct {
	mu     sync.Mutex
	events chan protocol.Event
	audio  [][]byte
	stops  int
	closes int
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{events: make(chan protocol.Event, 16)}
}

func (s *scriptedStream) Connect(context.Context, string, protocol.Options) (<-chan protocol.Event, error) {
	return s.events, nil
}

func (s *scriptedStream) SendAudio(chunk audio.PCMChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, chunk)
}

func (s *scriptedStream) SendStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++

	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++

	return nil
}

func (s *scriptedStream) Counts() (chunks, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.audio), s.stops, s.closes
}
