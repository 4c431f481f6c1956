package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

const frameBuffer = 32

type portAudioMicrophone struct {
	logger      *zap.Logger
	permissions PermissionChecker
}

// NewPortAudioMicrophone returns a Microphone backed by PortAudio.
func NewPortAudioMicrophone(logger *zap.Logger, permissions PermissionChecker) Microphone {
	return &portAudioMicrophone{
		logger:      logger.Named("microphone"),
		permissions: permissions,
	}
}

func (m *portAudioMicrophone) Open(ctx context.Context, c Constraints) (Stream, error) {
	allowed, err := m.permissions.MicrophoneAllowed(ctx)
	if err != nil {
		return nil, fmt.Errorf("check microphone permission: %w", err)
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &portAudioStream{
		logger: m.logger,
		frames: make(chan audio.Frame, frameBuffer),
	}

	if err := portaudio.Initialize(); err != nil {
		_ = s.Close()

		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	s.initialized = true

	device, err := inputDevice(c.DeviceName)
	if err != nil {
		_ = s.Close()

		return nil, err
	}

	// PortAudio exposes no voice processing; the request is recorded for diagnostics only.
	m.logger.Debug("Voice processing requested but not available from PortAudio",
		zap.Bool("echo_cancellation", c.EchoCancellation),
		zap.Bool("noise_suppression", c.NoiseSuppression),
		zap.Bool("auto_gain_control", c.AutoGainControl))

	if err := s.open(device, c); err != nil {
		_ = s.Close()

		return nil, err
	}

	if err := s.stream.Start(); err != nil {
		_ = s.Close()

		return nil, fmt.Errorf("start stream: %w", err)
	}
	s.started = true

	m.logger.Info("Microphone opened",
		zap.String("device", device.Name),
		zap.Int("sample_rate", s.rate),
		zap.Int("frames_per_buffer", c.FramesPerBuffer))

	return s, nil
}

func inputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoInputDevice, err)
		}

		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrNoInputDevice, name)
}

type portAudioStream struct {
	logger *zap.Logger
	stream *portaudio.Stream
	rate   int

	mu      sync.Mutex
	frames  chan audio.Frame
	closed  bool
	dropped int

	initialized bool
	started     bool
	closeOnce   sync.Once
	closeErr    error
}

// open tries the requested rate first and falls back to the device's native rate.
func (s *portAudioStream) open(device *portaudio.DeviceInfo, c Constraints) error {
	if device.MaxInputChannels <= 0 {
		return fmt.Errorf("%w: %q has no input channels", ErrNoInputDevice, device.Name)
	}

	channels := c.Channels
	if channels <= 0 || channels > device.MaxInputChannels {
		channels = 1
	}

	rates := []float64{float64(c.SampleRate)}
	if c.SampleRate <= 0 {
		rates = rates[:0]
	}
	if int(device.DefaultSampleRate) != c.SampleRate {
		rates = append(rates, device.DefaultSampleRate)
	}

	var errs error
	for _, rate := range rates {
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: channels,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      rate,
			FramesPerBuffer: c.FramesPerBuffer,
		}

		stream, err := portaudio.OpenStream(params, s.callback(channels, int(rate)))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("open at %.0f Hz: %w", rate, err))

			continue
		}

		s.stream = stream
		s.rate = int(rate)

		return nil
	}

	return fmt.Errorf("open input stream: %w", errs)
}

func (s *portAudioStream) callback(channels, rate int) func(in []float32) {
	return func(in []float32) {
		samples := make([]float32, len(in))
		copy(samples, in)
		samples = audio.DownmixInterleaved(samples, channels)

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			return
		}
		select {
		case s.frames <- audio.Frame{Samples: samples, SampleRate: rate, Channels: 1}:
		default:
			s.dropped++
		}
	}
}

func (s *portAudioStream) Frames() <-chan audio.Frame {
	return s.frames
}

func (s *portAudioStream) SampleRate() int {
	return s.rate
}

// Close stops capture and releases the device and the PortAudio context.
// Every step runs even if an earlier one fails.
func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.frames)
		dropped := s.dropped
		s.mu.Unlock()

		var err error
		if s.stream != nil {
			if s.started {
				err = multierr.Append(err, s.stream.Stop())
			}
			err = multierr.Append(err, s.stream.Close())
		}
		if s.initialized {
			err = multierr.Append(err, portaudio.Terminate())
		}
		s.closeErr = err

		s.logger.Info("Microphone released", zap.Int("dropped_frames", dropped), zap.Error(err))
	})

	return s.closeErr
}
