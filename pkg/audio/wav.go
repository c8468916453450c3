package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: not a valid PCM wav file")

const wavFormatPCM = 1

// WAVSource reads integer PCM from a WAV container and delivers it as 16-bit
// little-endian chunks in the file's own sample rate and channel layout.
// Wrap it with [ConvertSource] to match a stream format.
type WAVSource struct {
	dec      *wav.Decoder
	format   Format
	bitDepth int
	buf      *goaudio.IntBuffer
	closer   io.Closer
}

var _ Source = (*WAVSource)(nil)

// NewWAVSource decodes the WAV header from r. Each chunk covers chunk of
// audio; zero selects [DefaultChunkDuration].
func NewWAVSource(r io.ReadSeeker, chunk time.Duration) (*WAVSource, error) {
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d", ErrInvalidWAV, dec.WavAudioFormat)
	}
	depth := int(dec.BitDepth)
	switch depth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, depth)
	}

	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}
	samples := f.BytesPer(chunk) / 2
	return &WAVSource{
		dec:      dec,
		format:   f,
		bitDepth: depth,
		buf: &goaudio.IntBuffer{
			Format: dec.Format(),
			Data:   make([]int, samples),
		},
	}, nil
}

// OpenWAV opens the WAV file at path. Close releases the file.
func OpenWAV(path string, chunk time.Duration) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open wav: %w", err)
	}
	src, err := NewWAVSource(f, chunk)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("audio: open wav %q: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// Format returns the PCM format of the file.
func (s *WAVSource) Format() Format { return s.format }

// ReadChunk returns the next chunk of 16-bit PCM or io.EOF.
func (s *WAVSource) ReadChunk() ([]byte, error) {
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	// Keep whole frames only.
	n -= n % s.format.Channels
	out := make([]byte, n*2)
	for i, v := range s.buf.Data[:n] {
		sample := s.to16(v)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out, nil
}

// to16 scales a sample of the file's bit depth to int16.
func (s *WAVSource) to16(v int) int16 {
	switch s.bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

// Close releases the underlying file when the source was created by [OpenWAV].
func (s *WAVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
