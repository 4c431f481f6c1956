package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"go.uber.org/zap"

	"github.com/Raikerian/meetingmind-streamer/pkg/audio"
)

const readChunk = 64 * 1024

// Container formats recognized by Decode.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
)

type decoder struct {
	logger *zap.Logger
}

// NewDecoder returns a FileDecoder for WAV, MP3 and FLAC input.
func NewDecoder(logger *zap.Logger) FileDecoder {
	return &decoder{logger: logger.Named("decoder")}
}

// DetectFormat sniffs the container from its leading bytes. It returns "" when unknown.
func DetectFormat(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 4 && string(data[:4]) == "fLaC":
		return FormatFLAC
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return ""
	}
}

// Decode returns the whole file as mono samples. Any failure wraps ErrDecode; partial
// results are never returned.
func (d *decoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	format := DetectFormat(data)

	var (
		buf *Buffer
		err error
	)
	switch format {
	case FormatWAV:
		buf, err = decodeWAV(ctx, data)
	case FormatMP3:
		buf, err = decodeMP3(ctx, data)
	case FormatFLAC:
		buf, err = decodeFLAC(ctx, data)
	default:
		return nil, fmt.Errorf("%w: unsupported format", ErrDecode)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, format, err)
	}
	if len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: no audio samples", ErrDecode, format)
	}

	d.logger.Info("Decoded audio file",
		zap.String("format", format),
		zap.Int("sample_rate", buf.SampleRate),
		zap.Int("samples", len(buf.Samples)),
		zap.Duration("duration", buf.Duration()))

	return buf, nil
}

func decodeWAV(ctx context.Context, data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav header")
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pcm == nil || pcm.Format == nil {
		return nil, errors.New("missing pcm data")
	}

	depth := int(dec.BitDepth)
	ints := pcm.Data
	if depth == 8 {
		// 8-bit WAV is unsigned.
		for i := range ints {
			ints[i] -= 128
		}
	}

	return &Buffer{
		Samples:    audio.DownmixInterleaved(audio.IntToFloat32(ints, depth), pcm.Format.NumChannels),
		SampleRate: pcm.Format.SampleRate,
	}, nil
}

// decodeMP3 reads go-mp3's output, which is always 16-bit stereo.
func decodeMP3(ctx context.Context, data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var pcm bytes.Buffer
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := dec.Read(chunk)
		pcm.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	samples := audio.LEToPCMInt16(pcm.Bytes())
	floats := make([]float32, len(samples))
	for i, s := range samples {
		floats[i] = float32(s) / 32768
	}

	return &Buffer{
		Samples:    audio.DownmixInterleaved(floats, 2),
		SampleRate: dec.SampleRate(),
	}, nil
}

func decodeFLAC(ctx context.Context, data []byte) (*Buffer, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	depth := int(stream.Info.BitsPerSample)
	var ints []int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		n := frame.Subframes[0].NSamples
		for i := range n {
			for c := range channels {
				ints = append(ints, int(frame.Subframes[c].Samples[i]))
			}
		}
	}

	return &Buffer{
		Samples:    audio.DownmixInterleaved(audio.IntToFloat32(ints, depth), channels),
		SampleRate: int(stream.Info.SampleRate),
	}, nil
}
