package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// ErrRecorderClosed is returned by Write after Close.
var ErrRecorderClosed = errors.New("recorder closed")

// Recorder appends streamed PCM chunks to a 16 kHz mono WAV file.
type Recorder struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	samples int
	closed  bool
}

// NewRecorder creates the file at path, including missing parent directories.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recording dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}

	return &Recorder{
		path: path,
		file: file,
		enc:  wav.NewEncoder(file, TargetSampleRate, BytesPerSample*8, TargetChannels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: TargetChannels, SampleRate: TargetSampleRate},
			SourceBitDepth: BytesPerSample * 8,
		},
	}, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Samples returns how many samples have been written so far.
func (r *Recorder) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.samples
}

// Write appends one chunk.
func (r *Recorder) Write(chunk PCMChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	pcm := LEToPCMInt16(chunk)
	if len(pcm) == 0 {
		return nil
	}

	data := r.buf.Data[:0]
	for _, s := range pcm {
		data = append(data, int(s))
	}
	r.buf.Data = data

	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.samples += len(pcm)

	return nil
}

// Close finalizes the WAV header and closes the file. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}

	return fileErr
}
