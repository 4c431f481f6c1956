package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/internal/capture"
	"github.com/Raikerian/meetingmind-streamer/internal/config"
	"github.com/Raikerian/meetingmind-streamer/internal/infrastructure"
	"github.com/Raikerian/meetingmind-streamer/internal/meeting"
	"github.com/Raikerian/meetingmind-streamer/internal/protocol"
	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
	"github.com/Raikerian/meetingmind-streamer/pkg/util"
)

// StreamClient is the protocol side of a session. *protocol.Client implements it.
type StreamClient interface {
	Connect(ctx context.Context, sessionID string, opts protocol.Options) (<-chan protocol.Event, error)
	SendAudio(chunk audio.PCMChunk)
	SendStop() error
	Close() error
}

// StartOptions describe the meeting a session records.
type StartOptions struct {
	Title        string
	Participants []string
	Confidential bool
}

// FileOptions describe an offline upload.
type FileOptions struct {
	StartOptions
	Name string
	Data []byte
}

// Params are the controller's collaborators.
type Params struct {
	fx.In

	Logger     *zap.Logger
	Config     *config.Config
	API        meeting.API
	Stream     StreamClient
	Microphone capture.Microphone
	Decoder    capture.FileDecoder
	History    *History
	Metrics    *infrastructure.Metrics `optional:"true"`
}

// Controller drives one session at a time through idle, connecting, active and stopping.
type Controller struct {
	logger  *zap.Logger
	api     meeting.API
	stream  StreamClient
	mic     capture.Microphone
	decoder capture.FileDecoder
	history *History
	metrics *infrastructure.Metrics

	constraints capture.Constraints
	liveEncoder audio.Encoder
	fileEncoder audio.Encoder
	settings    config.SessionConfig
	recordDir   string
	stopTimeout time.Duration

	mu          sync.Mutex
	state       State
	cancelStart context.CancelFunc
	pending     StartOptions
	pendingMode Mode
	current     *activeSession
	transcript  Transcript
	elapsed     time.Duration
	lastErr     error
	stopDelay   *util.Delay

	sinksMu sync.Mutex
	sinks   []Sink

	wg sync.WaitGroup
}

// NewController wires a controller from its collaborators.
func NewController(p Params) *Controller {
	constraints := capture.DefaultConstraints()
	constraints.DeviceName = p.Config.Audio.DeviceName
	constraints.FramesPerBuffer = p.Config.Audio.FramesPerBuffer
	constraints.EchoCancellation = p.Config.Audio.EchoCancellation
	constraints.NoiseSuppression = p.Config.Audio.NoiseSuppression
	constraints.AutoGainControl = p.Config.Audio.AutoGainControl

	return &Controller{
		logger:      p.Logger.Named("session"),
		api:         p.API,
		stream:      p.Stream,
		mic:         p.Microphone,
		decoder:     p.Decoder,
		history:     p.History,
		metrics:     p.Metrics,
		constraints: constraints,
		liveEncoder: audio.NewEncoder(p.Config.Audio.Gain),
		fileEncoder: audio.NewEncoder(p.Config.Audio.FileGain),
		settings:    p.Config.Session,
		recordDir:   p.Config.Audio.RecordDir,
		stopTimeout: p.Config.Server.RequestTimeout,
	}
}

// Subscribe registers a sink for every later notification.
func (c *Controller) Subscribe(s Sink) {
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()

	c.sinks = append(c.sinks, s)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Snapshot copies the observable session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		Title:        c.pending.Title,
		Mode:         c.pendingMode,
		Confidential: c.pending.Confidential,
		Elapsed:      c.elapsed,
		Entries:      c.transcript.Entries(),
		Err:          c.lastErr,
	}
	if c.current != nil {
		snap.SessionID = c.current.id
	}
	if p, ok := c.transcript.Partial(); ok {
		snap.Partial = &p
	}

	return snap
}

// History returns archived sessions, most recent first.
func (c *Controller) History() []Record {
	return c.history.Recent()
}

// Start begins a live microphone session and returns once it is active or has failed.
func (c *Controller) Start(ctx context.Context, opts StartOptions) error {
	ctx, cancel, err := c.begin(ctx, opts, ModeLive)
	if err != nil {
		return err
	}
	defer cancel()

	m, err := c.api.Create(ctx, createRequest(opts))
	if err != nil {
		return c.fail(ctx, &Failure{Kind: FailureSessionCreate, Err: err})
	}

	events, err := c.stream.Connect(ctx, m.ID, protocol.Options{UseRemoteProcessing: !opts.Confidential})
	if err != nil {
		return c.fail(ctx, &Failure{Kind: FailureTransport, Err: err})
	}

	source, err := c.mic.Open(ctx, c.constraints)
	if err != nil {
		kind := FailureAudioSource
		if errors.Is(err, capture.ErrPermissionDenied) {
			kind = FailurePermissionDenied
		}

		return c.fail(ctx, &Failure{Kind: kind, Err: err}, c.stream.Close)
	}

	return c.activate(ctx, &activeSession{
		id:     m.ID,
		opts:   opts,
		mode:   ModeLive,
		source: source,
		events: events,
	})
}

// StartFile decodes an audio file and streams it at real-time pacing.
// The session stops on its own after the last chunk.
func (c *Controller) StartFile(ctx context.Context, opts FileOptions) error {
	ctx, cancel, err := c.begin(ctx, opts.StartOptions, ModeFile)
	if err != nil {
		return err
	}
	defer cancel()

	buf, err := c.decoder.Decode(ctx, opts.Data)
	if err != nil {
		return c.fail(ctx, &Failure{Kind: FailureDecode, Err: fmt.Errorf("%s: %w", opts.Name, err)})
	}
	c.logger.Info("Decoded upload",
		zap.String("name", opts.Name),
		zap.Int("sample_rate", buf.SampleRate),
		zap.Duration("duration", buf.Duration()))

	pcm := c.fileEncoder.Encode(audio.Frame{Samples: buf.Samples, SampleRate: buf.SampleRate, Channels: 1})

	return c.connectUpload(ctx, opts.StartOptions, pcm)
}

// StartPCM streams already encoded 16 kHz mono PCM16 the same way StartFile does.
func (c *Controller) StartPCM(ctx context.Context, pcm audio.PCMChunk, opts StartOptions) error {
	ctx, cancel, err := c.begin(ctx, opts, ModeFile)
	if err != nil {
		return err
	}
	defer cancel()

	return c.connectUpload(ctx, opts, pcm)
}

func (c *Controller) connectUpload(ctx context.Context, opts StartOptions, pcm audio.PCMChunk) error {
	m, err := c.api.Create(ctx, createRequest(opts))
	if err != nil {
		return c.fail(ctx, &Failure{Kind: FailureSessionCreate, Err: err})
	}

	events, err := c.stream.Connect(ctx, m.ID, protocol.Options{UseRemoteProcessing: !opts.Confidential})
	if err != nil {
		return c.fail(ctx, &Failure{Kind: FailureTransport, Err: err})
	}

	return c.activate(ctx, &activeSession{
		id:     m.ID,
		opts:   opts,
		mode:   ModeFile,
		events: events,
		upload: pcm,
	})
}

// Stop ends the current session. It never waits for the server and is a no-op when nothing runs.
func (c *Controller) Stop(ctx context.Context) {
	c.stop(ctx, nil)
}

// Shutdown stops any running session and completes a pending stop transition without waiting.
func (c *Controller) Shutdown(ctx context.Context) {
	c.Stop(ctx)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Shutdown gave up waiting for session goroutines", zap.Error(ctx.Err()))
	}

	c.mu.Lock()
	sess, delay := c.current, c.stopDelay
	stopping := c.state == StateStopping
	c.mu.Unlock()

	if stopping && delay.Stop() {
		c.completeStop(sess)
	}
}

// Reset clears an error so the next Start is not reported as a retry.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()

		return
	}
	c.state = StateIdle
	c.lastErr = nil
	c.mu.Unlock()

	c.notify(func(s Sink) { s.StateChanged(StateError, StateIdle) })
}

// stop acts on the current session, or only on target when it is non-nil.
func (c *Controller) stop(ctx context.Context, target *activeSession) {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		if target == nil && c.cancelStart != nil {
			c.logger.Info("Cancelling session start")
			c.cancelStart()
		}
		c.mu.Unlock()

		return
	case StateActive:
	default:
		c.mu.Unlock()

		return
	}

	sess := c.current
	if target != nil && sess != target {
		c.mu.Unlock()

		return
	}
	c.state = StateStopping
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("Session stopping", zap.String("session_id", sess.id))
	c.notify(func(s Sink) { s.StateChanged(StateActive, StateStopping) })

	// Stopping keeps new sessions out, so the socket work runs without c.mu.
	// No chunk may follow the stop message; a send in flight is bounded by the write timeout.
	sess.closeGate()
	if err := c.stream.SendStop(); err != nil {
		c.logger.Warn("Failed to send stop", zap.String("session_id", sess.id), zap.Error(err))
	}
	c.release(sess)

	c.mu.Lock()
	if c.state == StateStopping && c.current == sess {
		c.stopDelay = util.NewDelay(c.settings.StopTransitionDelay, func() { c.completeStop(sess) })
	}
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.notifyServerStop(context.WithoutCancel(ctx), sess.id)
	}()
}

func (c *Controller) completeStop(sess *activeSession) {
	c.mu.Lock()
	if c.state != StateStopping || c.current != sess {
		c.mu.Unlock()

		return
	}
	record := c.recordLocked(sess, EndStopped)
	c.clearLocked()
	c.mu.Unlock()

	c.history.Add(record)
	c.notify(func(s Sink) {
		s.StateChanged(StateStopping, StateIdle)
		s.SessionEnded(record)
	})
}

func (c *Controller) notifyServerStop(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, c.stopTimeout)
	defer cancel()

	if err := c.api.Stop(ctx, id); err != nil {
		failure := &Failure{Kind: FailureStopAPI, Err: err}
		c.metrics.SessionFailed(failure.Kind.String())
		c.logger.Warn("Stop notification failed", zap.String("session_id", id), zap.Error(failure))
	}
}

// begin moves idle or error to connecting and returns the attempt context.
func (c *Controller) begin(parent context.Context, opts StartOptions, mode Mode) (context.Context, context.CancelFunc, error) {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateError {
		c.mu.Unlock()

		return nil, nil, ErrSessionActive
	}

	from := c.state
	ctx, cancel := context.WithCancel(parent)
	c.state = StateConnecting
	c.cancelStart = cancel
	c.pending = opts
	c.pendingMode = mode
	c.lastErr = nil
	c.transcript.Reset()
	c.elapsed = 0
	c.mu.Unlock()

	c.logger.Info("Session connecting", zap.String("title", opts.Title), zap.Stringer("mode", mode))
	c.notify(func(s Sink) { s.StateChanged(from, StateConnecting) })

	return ctx, cancel, nil
}

// fail runs cleanups and leaves connecting, for error or for idle when the attempt was cancelled.
func (c *Controller) fail(ctx context.Context, failure *Failure, cleanups ...func() error) error {
	var errs error
	for _, cleanup := range cleanups {
		errs = multierr.Append(errs, cleanup())
	}
	if errs != nil {
		c.logger.Warn("Cleanup after failed start reported errors", zap.Error(errs))
	}

	c.mu.Lock()
	c.cancelStart = nil
	if ctx.Err() != nil {
		c.state = StateIdle
		c.mu.Unlock()

		c.logger.Info("Session start aborted", zap.Error(failure))
		c.notify(func(s Sink) { s.StateChanged(StateConnecting, StateIdle) })

		return ErrStartAborted
	}
	c.state = StateError
	c.lastErr = failure
	c.mu.Unlock()

	c.metrics.SessionFailed(failure.Kind.String())
	c.logger.Error("Session start failed", zap.Error(failure))
	c.notify(func(s Sink) {
		s.StateChanged(StateConnecting, StateError)
		s.SessionFailed(failure)
	})

	return failure
}

// activate moves connecting to active and starts the session goroutines.
func (c *Controller) activate(ctx context.Context, sess *activeSession) error {
	sess.startedAt = time.Now()

	if c.recordDir != "" {
		recorder, err := audio.NewRecorder(filepath.Join(c.recordDir, sess.id+".wav"))
		if err != nil {
			c.logger.Warn("Recording disabled for session", zap.String("session_id", sess.id), zap.Error(err))
		} else {
			sess.recorder = recorder
		}
	}

	c.mu.Lock()
	c.cancelStart = nil
	if ctx.Err() != nil {
		c.release(sess)
		c.state = StateIdle
		c.mu.Unlock()

		c.logger.Info("Session start aborted after connect", zap.String("session_id", sess.id))
		c.notify(func(s Sink) { s.StateChanged(StateConnecting, StateIdle) })

		return ErrStartAborted
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	c.current = sess
	c.state = StateActive
	sess.ticker = util.NewInterval(c.settings.TickInterval, func() { c.tick(sess) })
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pump(runCtx, sess)
	}()
	if sess.mode == ModeFile {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.upload(runCtx, sess)
		}()
	}
	c.mu.Unlock()

	c.metrics.SessionStarted()
	c.logger.Info("Session active", zap.String("session_id", sess.id), zap.Stringer("mode", sess.mode))
	c.notify(func(s Sink) { s.StateChanged(StateConnecting, StateActive) })

	return nil
}

// pump is the single execution queue of a session: frames out, events in, in arrival order.
func (c *Controller) pump(ctx context.Context, sess *activeSession) {
	var frames <-chan audio.Frame
	if sess.source != nil {
		frames = sess.source.Frames()
	}
	events := sess.events

	for frames != nil || events != nil {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				if ctx.Err() == nil {
					c.logger.Warn("Audio source ended", zap.String("session_id", sess.id))
				}

				continue
			}
			c.metrics.SetInputLevel(audio.Level(frame.Samples))
			c.send(sess, c.liveEncoder.Encode(frame))
		case ev, ok := <-events:
			if !ok {
				events = nil

				continue
			}
			c.handleEvent(sess, ev)
		}
	}
}

// upload paces pre-encoded PCM onto the stream, then stops the session.
func (c *Controller) upload(ctx context.Context, sess *activeSession) {
	chunks := audio.Chunks(sess.upload, c.settings.UploadChunkBytes)
	logger := c.logger.With(zap.String("session_id", sess.id))
	logger.Info("Upload started", zap.Int("chunks", len(chunks)), zap.Duration("duration", sess.upload.Duration()))

	timer := time.NewTimer(c.settings.UploadInterval)
	defer timer.Stop()

	for i, chunk := range chunks {
		if !c.isLive(sess) || !c.send(sess, chunk) {
			logger.Info("Upload aborted", zap.Int("sent", i), zap.Int("chunks", len(chunks)))

			return
		}

		timer.Reset(c.settings.UploadInterval)
		select {
		case <-ctx.Done():
			logger.Info("Upload aborted", zap.Int("sent", i+1), zap.Int("chunks", len(chunks)))

			return
		case <-timer.C:
		}
	}

	logger.Info("Upload complete", zap.Int("chunks", len(chunks)))
	c.stop(ctx, sess)
}

func (c *Controller) isLive(sess *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current == sess && c.state == StateActive
}

func (c *Controller) handleEvent(sess *activeSession, ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventPartial:
		entry := Entry{Text: ev.Text, Timestamp: time.Now()}
		if !c.applyIfLive(sess, func() { c.transcript.SetPartial(entry) }) {
			return
		}
		c.notify(func(s Sink) { s.PartialUpdated(entry) })
	case protocol.EventFinal:
		entry := Entry{Speaker: ev.Speaker, Text: ev.Text, Timestamp: ev.Timestamp}
		if !c.applyIfLive(sess, func() { c.transcript.Finalize(entry) }) {
			return
		}
		c.notify(func(s Sink) { s.EntryFinalized(entry) })
	case protocol.EventStopped:
		c.finish(sess, EndServerStopped, nil)
	case protocol.EventClosed:
		c.finish(sess, EndPeerClosed, nil)
	case protocol.EventFailed:
		c.finish(sess, EndFailed, &Failure{Kind: FailureTransport, Err: ev.Err})
	}
}

func (c *Controller) applyIfLive(sess *activeSession, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != sess || c.state != StateActive {
		return false
	}
	fn()

	return true
}

// finish ends an active session on the server's initiative.
// Only a graceful stop is archived; a dropped connection discards the transcript.
func (c *Controller) finish(sess *activeSession, reason EndReason, failure *Failure) {
	c.mu.Lock()
	if c.current != sess || c.state != StateActive {
		c.mu.Unlock()

		return
	}
	c.release(sess)
	record := c.recordLocked(sess, reason)
	c.clearLocked()
	c.mu.Unlock()

	logger := c.logger.With(zap.String("session_id", sess.id), zap.Stringer("reason", reason))
	if reason == EndServerStopped {
		c.history.Add(record)
		logger.Info("Session finished by server")
	} else {
		logger.Warn("Session ended without a stop exchange", zap.Int("discarded_entries", len(record.Entries)))
	}
	if failure != nil {
		c.metrics.SessionFailed(failure.Kind.String())
	}

	c.notify(func(s Sink) {
		s.StateChanged(StateActive, StateIdle)
		if failure != nil {
			s.SessionFailed(failure)
		} else {
			s.SessionEnded(record)
		}
	})
}

func (c *Controller) tick(sess *activeSession) {
	c.mu.Lock()
	if c.current != sess || c.state != StateActive {
		c.mu.Unlock()

		return
	}
	c.elapsed += c.settings.TickInterval
	elapsed := c.elapsed
	c.mu.Unlock()

	c.notify(func(s Sink) { s.Tick(elapsed) })
}

// release tears a session down exactly once. Every step runs even when an earlier one fails.
// The stream is closed before the send gate is taken, which unblocks a send stuck on a stalled peer.
func (c *Controller) release(sess *activeSession) {
	sess.releaseOnce.Do(func() {
		if sess.cancel != nil {
			sess.cancel()
		}
		sess.ticker.Stop()

		var err error
		if sess.source != nil {
			err = multierr.Append(err, sess.source.Close())
		}
		err = multierr.Append(err, c.stream.Close())
		sess.closeGate()

		if sess.recorder != nil {
			err = multierr.Append(err, sess.recorder.Close())
		}

		if !sess.startedAt.IsZero() {
			c.metrics.ObserveSessionDuration(time.Since(sess.startedAt))
		}
		if err != nil {
			c.logger.Warn("Session teardown reported errors", zap.String("session_id", sess.id), zap.Error(err))
		}
	})
}

// recordLocked snapshots sess into a history record. The caller holds c.mu.
func (c *Controller) recordLocked(sess *activeSession, reason EndReason) Record {
	return Record{
		SessionID:    sess.id,
		Title:        sess.opts.Title,
		Mode:         sess.mode,
		Confidential: sess.opts.Confidential,
		StartedAt:    sess.startedAt,
		Elapsed:      c.elapsed,
		Entries:      c.transcript.Entries(),
		End:          reason,
	}
}

// clearLocked returns to idle with an empty transcript. The caller holds c.mu.
func (c *Controller) clearLocked() {
	c.state = StateIdle
	c.current = nil
	c.transcript.Reset()
	c.elapsed = 0
	c.stopDelay = nil
}

func (c *Controller) notify(fn func(Sink)) {
	c.sinksMu.Lock()
	sinks := slices.Clone(c.sinks)
	c.sinksMu.Unlock()

	for _, s := range sinks {
		fn(s)
	}
}

func createRequest(opts StartOptions) meeting.CreateRequest {
	return meeting.CreateRequest{
		Title:          opts.Title,
		Participants:   opts.Participants,
		IsConfidential: opts.Confidential,
	}
}

// activeSession is everything one session owns between activate and release.
type activeSession struct {
	id        string
	opts      StartOptions
	mode      Mode
	startedAt time.Time
	source    capture.Stream
	events    <-chan protocol.Event
	upload    audio.PCMChunk
	recorder  *audio.Recorder
	cancel    context.CancelFunc
	ticker    *util.Interval

	sendMu      sync.RWMutex
	gateClosed  bool
	releaseOnce sync.Once
}

// closeGate waits for a send in flight and rejects every later one.
func (s *activeSession) closeGate() {
	s.sendMu.Lock()
	s.gateClosed = true
	s.sendMu.Unlock()
}

// send writes chunk to the stream unless the gate of sess is closed. Once closeGate returns no
// chunk of sess can reach the stream. Only one goroutine sends for a session.
func (c *Controller) send(sess *activeSession, chunk audio.PCMChunk) bool {
	sess.sendMu.RLock()
	defer sess.sendMu.RUnlock()

	if sess.gateClosed {
		return false
	}
	c.stream.SendAudio(chunk)

	if sess.recorder != nil {
		if err := sess.recorder.Write(chunk); err != nil {
			err = multierr.Append(err, sess.recorder.Close())
			sess.recorder = nil
			c.logger.Warn("Recording stopped", zap.String("session_id", sess.id), zap.Error(err))
		}
	}

	return true
}
