package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts AudioFrames to a target format, typically
// wideband provider output down to the 8 kHz narrowband leg. It logs a
// warning on the first format mismatch and validates PCM alignment.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. A frame already in the
// target format is returned unchanged without allocating. Resampling runs
// before channel conversion so stereo input is never resampled when the
// target is mono.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	if frame.SampleRate != c.Target.SampleRate {
		channels := frame.Channels
		if channels != 2 {
			channels = 1
		}
		pcm = resample16(pcm, frame.SampleRate, c.Target.SampleRate, channels)
	}
	switch {
	case frame.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case frame.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream wraps an input channel with a conversion goroutine. The
// returned channel closes when in closes and inherits cap(in). Frames left
// empty by validation are dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// sample16 reads the little-endian int16 at sample index i.
func sample16(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// putSample16 writes v as little-endian int16 at sample index i.
func putSample16(out []byte, i int, v int16) {
	out[i*2] = byte(v)
	out[i*2+1] = byte(v >> 8)
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM.
func MonoToStereo(pcm []byte) []byte {
	samples := len(pcm) / 2
	out := make([]byte, samples*4)
	for i := range samples {
		s := sample16(pcm, i)
		putSample16(out, i*2, s)
		putSample16(out, i*2+1, s)
	}
	return out
}

// StereoToMono averages L+R per stereo frame into one mono sample, with
// int32 arithmetic and clamping so opposing full-scale samples cannot wrap.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample16(pcm, i*2)) + int32(sample16(pcm, i*2+1))) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		putSample16(out, i, int16(avg))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono little-endian PCM from srcRate to
// dstRate with linear interpolation. When srcRate == dstRate the input is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 1)
}

// ResampleStereo16 is [ResampleMono16] for interleaved stereo frames; left
// and right are interpolated independently.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample16(pcm, srcRate, dstRate, 2)
}

// resample16 is the shared linear-interpolation core. A frame is one sample
// per channel; interpolation happens between adjacent frames within each
// channel, and the final frame is held rather than extrapolated.
func resample16(pcm []byte, srcRate, dstRate, channels int) []byte {
	frameBytes := channels * 2
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < frameBytes {
		return pcm
	}
	srcFrames := len(pcm) / frameBytes
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			s0 := float64(sample16(pcm, idx*channels+ch))
			s1 := float64(sample16(pcm, next*channels+ch))
			putSample16(out, i*channels+ch, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}

// formatString renders a rate and channel count as "8000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
