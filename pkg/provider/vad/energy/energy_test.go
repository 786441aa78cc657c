package energy_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/vad"
	"github.com/voxgate/voxgate/pkg/provider/vad/energy"
)

func testConfig() vad.Config {
	return vad.Config{
		SampleRate:  8000,
		FrameSizeMs: 20,
		Confidence:  0.7,
		MinVolume:   0.6,
		StartWindow: 60 * time.Millisecond,
		StopWindow:  40 * time.Millisecond,
	}
}

// pcmFrame builds a 20ms frame of constant-amplitude samples.
func pcmFrame(t *testing.T, cfg vad.Config, amplitude int16) []byte {
	t.Helper()
	samples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func newSession(t *testing.T, cfg vad.Config) vad.SessionHandle {
	t.Helper()
	sess, err := energy.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestSpeechStartAfterDebounce(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)

	loud := pcmFrame(t, cfg, 8000)
	var starts, continues int
	for i := 0; i < 20; i++ {
		ev, err := sess.ProcessFrame(loud)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		switch ev.Type {
		case vad.VADSpeechStart:
			starts++
		case vad.VADSpeechContinue:
			continues++
		}
	}
	if starts != 1 {
		t.Errorf("got %d speech starts over sustained speech, want exactly 1", starts)
	}
	if continues == 0 {
		t.Error("sustained speech never reported speech_continue")
	}
}

func TestShortBurstDoesNotTrigger(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)

	loud := pcmFrame(t, cfg, 8000)
	quiet := pcmFrame(t, cfg, 0)
	// One loud frame is well under the 60ms start window.
	frames := [][]byte{quiet, loud, quiet, quiet, quiet}
	for i, f := range frames {
		ev, err := sess.ProcessFrame(f)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type == vad.VADSpeechStart {
			t.Fatalf("frame %d: a single loud frame triggered speech_start", i)
		}
	}
}

func TestSpeechEndAfterStopWindow(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)

	loud := pcmFrame(t, cfg, 8000)
	quiet := pcmFrame(t, cfg, 0)

	for i := 0; i < 10; i++ {
		if _, err := sess.ProcessFrame(loud); err != nil {
			t.Fatalf("loud frame %d: %v", i, err)
		}
	}

	var end int
	for i := 0; i < 10; i++ {
		ev, err := sess.ProcessFrame(quiet)
		if err != nil {
			t.Fatalf("quiet frame %d: %v", i, err)
		}
		if ev.Type == vad.VADSpeechEnd {
			if i == 0 {
				t.Error("speech_end fired on the first quiet frame, before the stop window elapsed")
			}
			end++
		}
	}
	if end != 1 {
		t.Errorf("got %d speech ends, want exactly 1", end)
	}
}

func TestQuietSpeechBelowMinVolumeIgnored(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)

	// Amplitude 500 is ~1.5% of full scale: audible noise, not speech.
	faint := pcmFrame(t, cfg, 500)
	for i := 0; i < 30; i++ {
		ev, err := sess.ProcessFrame(faint)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type != vad.VADSilence {
			t.Fatalf("frame %d: faint audio classified as %s", i, ev.Type)
		}
	}
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)

	loud := pcmFrame(t, cfg, 8000)
	for i := 0; i < 10; i++ {
		if _, err := sess.ProcessFrame(loud); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	sess.Reset()

	ev, err := sess.ProcessFrame(pcmFrame(t, cfg, 0))
	if err != nil {
		t.Fatalf("ProcessFrame after Reset: %v", err)
	}
	if ev.Type != vad.VADSilence {
		t.Errorf("after Reset a quiet frame classified as %s, want silence", ev.Type)
	}
}

func TestWrongFrameSizeRejected(t *testing.T) {
	t.Parallel()
	sess := newSession(t, testConfig())
	if _, err := sess.ProcessFrame(make([]byte, 10)); err == nil {
		t.Error("undersized frame accepted")
	}
}

func TestClosedSessionRejectsFrames(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	sess := newSession(t, cfg)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := sess.ProcessFrame(pcmFrame(t, cfg, 0)); !errors.Is(err, energy.ErrSessionClosed) {
		t.Errorf("ProcessFrame after Close = %v, want ErrSessionClosed", err)
	}
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*vad.Config)
	}{
		{"sample rate", func(c *vad.Config) { c.SampleRate = 44100 }},
		{"frame size", func(c *vad.Config) { c.FrameSizeMs = 0 }},
		{"confidence", func(c *vad.Config) { c.Confidence = 1.2 }},
		{"min volume", func(c *vad.Config) { c.MinVolume = -0.1 }},
		{"stop window", func(c *vad.Config) { c.StopWindow = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := energy.New().NewSession(cfg); err == nil {
				t.Errorf("invalid %s accepted", tc.name)
			}
		})
	}
}
