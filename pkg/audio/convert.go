package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter converts PCM chunks to a target format. It logs a warning on the
// first format mismatch and drops misaligned chunks.
// Create one per stream; not designed for shared use across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts pcm from the given format to the target format. If the
// formats already match, pcm is returned unchanged (zero allocation).
// Multi-channel input is downmixed before resampling so that only one
// channel is interpolated.
func (c *Converter) Convert(pcm []byte, from Format) []byte {
	if len(pcm)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping chunk",
				"bytes", len(pcm),
				"format", from.String(),
			)
		})
		return nil
	}

	if from == c.Target {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio format mismatch: converting",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	channels := from.Channels
	switch {
	case channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
		channels = 1
	case channels > 2 && c.Target.Channels == 1:
		pcm = DownmixToMono(pcm, channels)
		channels = 1
	}

	if from.SampleRate != c.Target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, from.SampleRate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, from.SampleRate, c.Target.SampleRate)
		}
	}

	if channels == 1 && c.Target.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm
}

// convertedSource adapts a Source to a target format.
type convertedSource struct {
	src  Source
	conv *Converter
}

// ConvertSource wraps src so that every chunk is delivered in target format.
// Chunks that convert to nothing are skipped.
func ConvertSource(src Source, target Format) Source {
	if src.Format() == target {
		return src
	}
	return &convertedSource{src: src, conv: &Converter{Target: target}}
}

func (s *convertedSource) Format() Format { return s.conv.Target }

func (s *convertedSource) ReadChunk() ([]byte, error) {
	for {
		chunk, err := s.src.ReadChunk()
		if err != nil {
			return nil, err
		}
		if out := s.conv.Convert(chunk, s.src.Format()); len(out) > 0 {
			return out, nil
		}
	}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	return DownmixToMono(pcm, 2)
}

// DownmixToMono averages every interleaved frame of the given channel count
// into one int16 sample. Trailing partial frames are dropped.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := 2 * channels
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			off := i*frameBytes + ch*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = sampleAt(pcm, srcIdx+1)
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit stereo PCM by resampling each channel
// independently. If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	frames := len(pcm) / 4
	left := make([]byte, frames*2)
	right := make([]byte, frames*2)
	for i := range frames {
		copy(left[i*2:i*2+2], pcm[i*4:i*4+2])
		copy(right[i*2:i*2+2], pcm[i*4+2:i*4+4])
	}
	left = ResampleMono16(left, srcRate, dstRate)
	right = ResampleMono16(right, srcRate, dstRate)

	out := make([]byte, len(left)*2)
	for i := 0; i+1 < len(left); i += 2 {
		j := i * 2
		out[j], out[j+1] = left[i], left[i+1]
		out[j+2], out[j+3] = right[i], right[i+1]
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
