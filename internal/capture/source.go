// Package capture acquires raw audio from the microphone or from an uploaded file.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

var (
	// ErrPermissionDenied means the user refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	// ErrNoInputDevice means no usable input device was found.
	ErrNoInputDevice = errors.New("capture: no input device")
	// ErrDecode wraps every file decoding failure.
	ErrDecode = errors.New("capture: decode failed")
)

// Constraints describe the requested microphone capture.
type Constraints struct {
	SampleRate       int
	Channels         int
	FramesPerBuffer  int
	DeviceName       string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints requests mono, processed capture at the streaming rate.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       audio.TargetSampleRate,
		Channels:         1,
		FramesPerBuffer:  1024,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Stream is a live capture. Frames is closed once the stream is closed.
type Stream interface {
	Frames() <-chan audio.Frame
	SampleRate() int
	Close() error
}

// Microphone opens live capture streams.
type Microphone interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// PermissionChecker reports whether the platform allows microphone access.
type PermissionChecker interface {
	MicrophoneAllowed(ctx context.Context) (bool, error)
}

// Buffer is a fully decoded mono file.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// FileDecoder turns encoded file bytes into a Buffer.
type FileDecoder interface {
	Decode(ctx context.Context, data []byte) (*Buffer, error)
}

type allowAll struct{}

// NewPermissionChecker returns the checker for platforms without an explicit consent API.
func NewPermissionChecker() PermissionChecker {
	return allowAll{}
}

func (allowAll) MicrophoneAllowed(context.Context) (bool, error) {
	return true, nil
}
