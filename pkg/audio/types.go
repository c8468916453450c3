// Package audio supplies 16-bit little-endian PCM to recognition streams.
//
// A [Source] yields fixed-duration chunks of PCM in its [Format]. Sources
// are available for WAV files ([WAVSource]) and raw PCM readers such as stdin
// ([ReaderSource]); [ConvertSource] adapts any source to the sample rate and
// channel layout a recognition provider expects.
package audio

import (
	"fmt"
	"time"
)

// DefaultChunkDuration is the audio length carried by one chunk.
const DefaultChunkDuration = 100 * time.Millisecond

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// BytesPer returns the number of PCM bytes covering d, rounded down to a
// whole frame and never less than one frame.
func (f Format) BytesPer(d time.Duration) int {
	frame := 2 * max(f.Channels, 1)
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return max(frames, 1) * frame
}

// Validate reports an unusable format.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// Source produces PCM chunks. ReadChunk returns io.EOF once the audio is
// exhausted; any other error means the input device or file failed.
type Source interface {
	// Format describes the PCM returned by ReadChunk.
	Format() Format
	// ReadChunk returns the next chunk of PCM.
	ReadChunk() ([]byte, error)
}
