package call

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voxgate/voxgate/pkg/audio"
)

// Recorder accumulates both legs of a call in memory and writes a stereo WAV
// file at teardown: caller on the left channel, bot on the right.
//
// The two tracks are captured independently, so their alignment is only
// approximate. The bot track is written when the playout queue emits audio,
// which runs slightly ahead of what the trunk actually plays.
type Recorder struct {
	sampleRate int

	mu     sync.Mutex
	caller []byte
	bot    []byte
}

// NewRecorder returns a Recorder for sampleRate Hz 16-bit mono legs.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{sampleRate: sampleRate}
}

// WriteCaller appends one chunk of inbound caller PCM.
func (r *Recorder) WriteCaller(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caller = append(r.caller, pcm...)
}

// WriteBot appends one chunk of outbound bot PCM.
func (r *Recorder) WriteBot(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bot = append(r.bot, pcm...)
}

// Save writes the recording as <dir>/<callID>.wav and returns the path.
// Returns ("", nil) when no audio was captured.
func (r *Recorder) Save(dir, callID string) (string, error) {
	r.mu.Lock()
	caller := r.caller
	bot := r.bot
	r.mu.Unlock()

	if len(caller) == 0 && len(bot) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("call: create recordings dir: %w", err)
	}

	path := filepath.Join(dir, callID+".wav")
	stereo := interleaveStereo(caller, bot)
	if err := audio.WriteWAVPCM16File(path, stereo, r.sampleRate, 2); err != nil {
		return "", fmt.Errorf("call: write recording: %w", err)
	}
	return path, nil
}

// interleaveStereo merges two mono 16-bit tracks into one stereo stream,
// left then right per sample. The shorter track is padded with silence.
func interleaveStereo(left, right []byte) []byte {
	n := len(left)
	if len(right) > n {
		n = len(right)
	}
	if n%2 != 0 {
		n++
	}

	out := make([]byte, 2*n)
	for i := 0; i+1 < n; i += 2 {
		if i+1 < len(left) {
			out[2*i] = left[i]
			out[2*i+1] = left[i+1]
		}
		if i+1 < len(right) {
			out[2*i+2] = right[i]
			out[2*i+3] = right[i+1]
		}
	}
	return out
}
