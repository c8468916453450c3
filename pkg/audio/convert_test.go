package audio_test

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/readalong/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	mono := samplesToBytes([]int16{100, 200, 300})
	equalSamples(t, bytesToSamples(audio.MonoToStereo(mono)), []int16{100, 100, 200, 200, 300, 300})
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	equalSamples(t, bytesToSamples(audio.StereoToMono(stereo)), []int16{150, -150})
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	t.Parallel()
	stereo := samplesToBytes([]int16{32767, 32767, -32768, -32768})
	equalSamples(t, bytesToSamples(audio.StereoToMono(stereo)), []int16{32767, -32768})
}

func TestDownmixToMono_FourChannels(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 0, 0, 0, 40})
	equalSamples(t, bytesToSamples(audio.DownmixToMono(pcm, 4)), []int16{250, 10})
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("expected same slice for equal rates")
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	out := bytesToSamples(audio.ResampleMono16(samplesToBytes([]int16{1000, 2000}), 16000, 48000))
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	if out[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", out[0])
	}
	if last := out[len(out)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	t.Parallel()
	// 48kHz → 16kHz is the common case for browser or phone captures.
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	if got := bytesToSamples(audio.ResampleMono16(pcm, 48000, 16000)); len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{1, 2})
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input unchanged")
	}
}

func TestResampleStereo16_KeepsChannelsApart(t *testing.T) {
	t.Parallel()
	pcm := samplesToBytes([]int16{100, -100, 100, -100})
	got := bytesToSamples(audio.ResampleStereo16(pcm, 16000, 48000))
	if len(got) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i] != 100 || got[i+1] != -100 {
			t.Fatalf("frame %d = (%d, %d), want (100, -100)", i/2, got[i], got[i+1])
		}
	}
}

func TestConverter_NoOp(t *testing.T) {
	t.Parallel()
	f := audio.Format{SampleRate: 16000, Channels: 1}
	conv := audio.Converter{Target: f}
	pcm := samplesToBytes([]int16{100, 200})
	if out := conv.Convert(pcm, f); &out[0] != &pcm[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestConverter_StereoDownsample(t *testing.T) {
	t.Parallel()
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	// 6 stereo frames at 48kHz → 2 mono samples at 16kHz.
	pcm := samplesToBytes([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300})
	got := bytesToSamples(conv.Convert(pcm, audio.Format{SampleRate: 48000, Channels: 2}))
	equalSamples(t, got, []int16{200, 200})
}

func TestConverter_MonoToStereo(t *testing.T) {
	t.Parallel()
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 2}}
	got := bytesToSamples(conv.Convert(samplesToBytes([]int16{7, 8}), audio.Format{SampleRate: 16000, Channels: 1}))
	equalSamples(t, got, []int16{7, 7, 8, 8})
}

func TestConverter_OddByteCount(t *testing.T) {
	t.Parallel()
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	if out := conv.Convert([]byte{1, 2, 3}, audio.Format{SampleRate: 16000, Channels: 1}); out != nil {
		t.Errorf("odd byte count should be dropped, got %d bytes", len(out))
	}
}

// sliceSource replays fixed chunks.
type sliceSource struct {
	format audio.Format
	chunks [][]byte
	err    error
}

func (s *sliceSource) Format() audio.Format { return s.format }

func (s *sliceSource) ReadChunk() ([]byte, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func TestConvertSource(t *testing.T) {
	t.Parallel()

	target := audio.Format{SampleRate: 16000, Channels: 1}
	src := &sliceSource{
		format: audio.Format{SampleRate: 16000, Channels: 2},
		chunks: [][]byte{{1, 2, 3}, samplesToBytes([]int16{10, 20})},
	}
	conv := audio.ConvertSource(src, target)
	if conv.Format() != target {
		t.Errorf("Format = %v, want %v", conv.Format(), target)
	}
	chunk, err := conv.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	equalSamples(t, bytesToSamples(chunk), []int16{15})
	if _, err := conv.ReadChunk(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}

	same := &sliceSource{format: target}
	if audio.ConvertSource(same, target) != audio.Source(same) {
		t.Error("matching source should be returned as is")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	if got := f.BytesPer(audio.DefaultChunkDuration); got != 3200 {
		t.Errorf("BytesPer(100ms) = %d, want 3200", got)
	}
	if got := f.String(); got != "16000Hz mono" {
		t.Errorf("String = %q", got)
	}
	if err := (audio.Format{}).Validate(); err == nil {
		t.Error("zero format should be invalid")
	}
}
