package session

import (
	"time"

	"go.uber.org/zap"
)

// Sink receives controller notifications. It is the boundary to whatever presents the session.
// Methods are called outside the controller lock and may run on different goroutines.
type Sink interface {
	StateChanged(from, to State)
	PartialUpdated(e Entry)
	EntryFinalized(e Entry)
	Tick(elapsed time.Duration)
	SessionEnded(r Record)
	SessionFailed(err error)
}

// NopSink ignores every notification. Embed it to implement only part of Sink.
type NopSink struct{}

func (NopSink) StateChanged(State, State) {}
func (NopSink) PartialUpdated(Entry) {}
func (NopSink) EntryFinalized(Entry) {}
func (NopSink) Tick(time.Duration) {}
func (NopSink) SessionEnded(Record) {}
func (NopSink) SessionFailed(error) {}

// LogSink writes the session to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a Sink that logs transcript lines at info and partials at debug.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("transcript")}
}

func (s *LogSink) StateChanged(from, to State) {
	s.logger.Info("Session state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (s *LogSink) PartialUpdated(e Entry) {
	s.logger.Debug("Partial", zap.String("text", e.Text))
}

func (s *LogSink) EntryFinalized(e Entry) {
	s.logger.Info("Final",
		zap.String("speaker", e.Speaker),
		zap.String("text", e.Text),
		zap.Time("timestamp", e.Timestamp))
}

func (s *LogSink) Tick(elapsed time.Duration) {
	if elapsed%time.Minute == 0 {
		s.logger.Info("Session running", zap.Duration("elapsed", elapsed))
	}
}

func (s *LogSink) SessionEnded(r Record) {
	s.logger.Info("Session ended",
		zap.String("session_id", r.SessionID),
		zap.Stringer("reason", r.End),
		zap.Int("entries", len(r.Entries)),
		zap.Duration("elapsed", r.Elapsed))
}

func (s *LogSink) SessionFailed(err error) {
	s.logger.Error("Session failed", zap.Error(err))
}
