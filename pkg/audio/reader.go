package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ReaderSource frames raw 16-bit little-endian PCM read from an io.Reader,
// for example stdin fed by an external recorder.
type ReaderSource struct {
	r      io.Reader
	format Format
	buf    []byte
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a Source reading PCM of format f from r in chunks
// of the given duration. Zero selects [DefaultChunkDuration].
func NewReaderSource(r io.Reader, f Format, chunk time.Duration) (*ReaderSource, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	return &ReaderSource{r: r, format: f, buf: make([]byte, f.BytesPer(chunk))}, nil
}

// Format returns the configured PCM format.
func (s *ReaderSource) Format() Format { return s.format }

// ReadChunk blocks until a full chunk is available. A short final chunk is
// returned (truncated to whole frames) before io.EOF.
func (s *ReaderSource) ReadChunk() ([]byte, error) {
	n, err := io.ReadFull(s.r, s.buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	frame := 2 * s.format.Channels
	n -= n % frame
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("audio: read pcm: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("audio: read pcm: %w", err)
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}
