// Package protocol implements the streaming session protocol on top of a transport connection.
package protocol

import (
	"math"
	"time"
)

// Message types on the wire.
const (
	TypePartial = "partial"
	TypeFinal   = "final"
	TypeStopped = "stopped"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeStop    = "stop"
)

// UnknownSpeaker labels final results that arrive without a speaker.
const UnknownSpeaker = "unknown"

// Handshake is the first message sent on every connection.
type Handshake struct {
	SessionID           string `json:"session_id"`
	SampleRate          int    `json:"sample_rate"`
	UseRemoteProcessing bool   `json:"use_remote_processing"`
}

type control struct {
	Type string `json:"type"`
}

// inbound covers every server message shape. Timestamp is epoch seconds.
type inbound struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Speaker   *string  `json:"speaker"`
	Timestamp *float64 `json:"timestamp"`
	SessionID string   `json:"session_id"`
}

func (m inbound) speaker() string {
	if m.Speaker == nil || *m.Speaker == "" {
		return UnknownSpeaker
	}

	return *m.Speaker
}

func (m inbound) time(now time.Time) time.Time {
	if m.Timestamp == nil || *m.Timestamp <= 0 {
		return now
	}

	sec, frac := math.Modf(*m.Timestamp)

	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
