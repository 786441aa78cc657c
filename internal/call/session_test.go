package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/store"
	"github.com/voxgate/voxgate/internal/transport"
	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/audio"
	playermock "github.com/voxgate/voxgate/pkg/audio/mock"
	"github.com/voxgate/voxgate/pkg/provider/eot"
	eotmock "github.com/voxgate/voxgate/pkg/provider/eot/mock"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	llmmock "github.com/voxgate/voxgate/pkg/provider/llm/mock"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	sttmock "github.com/voxgate/voxgate/pkg/provider/stt/mock"
	ttsmock "github.com/voxgate/voxgate/pkg/provider/tts/mock"
	"github.com/voxgate/voxgate/pkg/provider/vad"
	vadmock "github.com/voxgate/voxgate/pkg/provider/vad/mock"
)

// fakeMedia is an in-process Media implementation for session tests.
type fakeMedia struct {
	start transport.StartInfo
	audio chan []byte
	marks chan string
	err   error

	mu        sync.Mutex
	sentAudio int
	sentMarks []string
	clears    int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		start: transport.StartInfo{
			CallID:     "call-1",
			StreamID:   "stream-1",
			From:       "+14155550123",
			To:         "+18005550199",
			Direction:  "inbound",
			SampleRate: 8000,
		},
		audio: make(chan []byte, 16),
		marks: make(chan string, 4),
	}
}

func (f *fakeMedia) Start() transport.StartInfo { return f.start }
func (f *fakeMedia) Audio() <-chan []byte       { return f.audio }
func (f *fakeMedia) Marks() <-chan string       { return f.marks }
func (f *fakeMedia) Err() error                 { return f.err }

func (f *fakeMedia) SendAudio(_ context.Context, pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentAudio += len(pcm)
	return nil
}

func (f *fakeMedia) SendMark(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentMarks = append(f.sentMarks, name)
	return nil
}

func (f *fakeMedia) SendClear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeMedia) markSent(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sentMarks {
		if m == name {
			return true
		}
	}
	return false
}

func (f *fakeMedia) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// rig bundles a session with all its mocked dependencies.
type rig struct {
	media   *fakeMedia
	vadSess *vadmock.Session
	sttSess *sttmock.Session
	eotCls  *eotmock.Classifier
	ttsProv *ttsmock.Provider
	llmProv *llmmock.Provider
	player  *playermock.Player
	calls   *store.MemStore
	sess    *Session
}

func newRig(t *testing.T, agent config.AgentConfig, turnCfg turn.Config) *rig {
	t.Helper()

	r := &rig{
		media: newFakeMedia(),
		vadSess: &vadmock.Session{
			Events: []vad.VADEvent{
				{Type: vad.VADSpeechStart, Probability: 0.9},
				{Type: vad.VADSpeechEnd},
			},
		},
		sttSess: &sttmock.Session{
			PartialsCh: make(chan stt.Transcript, 8),
			FinalsCh:   make(chan stt.Transcript, 8),
		},
		eotCls: &eotmock.Classifier{
			Verdict: eot.Verdict{Complete: true, Probability: 0.9},
		},
		ttsProv: &ttsmock.Provider{
			CollectText:      true,
			SynthesizeChunks: [][]byte{make([]byte, 320)},
		},
		llmProv: &llmmock.Provider{
			StreamChunks: []llm.Chunk{
				{Text: "Sure, I can help. "},
				{Text: "Goodbye.", FinishReason: "stop"},
			},
		},
		player: &playermock.Player{},
		calls:  &store.MemStore{},
	}

	sess, err := NewSession(SessionParams{
		CallID:     "call-1",
		Agent:      agent,
		Turn:       turnCfg,
		SampleRate: 8000,
		Media:      r.media,
		Player:     r.player,
		Pipeline: Pipeline{
			VAD:   r.vadSess,
			STT:   r.sttSess,
			EOT:   r.eotCls,
			TTS:   r.ttsProv,
			LLM:   r.llmProv,
			Calls: r.calls,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("session construction failed: %v", err)
	}
	r.sess = sess
	return r
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func fastTurnConfig() turn.Config {
	cfg := turn.DefaultConfig()
	cfg.StopTimeout = 300 * time.Millisecond
	return cfg
}

func TestSession_GreetingThenResponse(t *testing.T) {
	agent := config.AgentConfig{
		Name:         "reception",
		SystemPrompt: "You are a phone receptionist.",
		Greeting:     "Hello!",
	}
	turnCfg := fastTurnConfig()
	turnCfg.MuteUntilBotReady = true

	r := newRig(t, agent, turnCfg)

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- r.sess.Run(ctx) }()

	// The greeting plays first; its mark is sent once synthesis finishes.
	waitFor(t, func() bool { return r.media.markSent("greeting") }, "greeting mark never sent")
	if got := r.sess.ctrl.State(); got != turn.StateMuted {
		t.Fatalf("state before greeting echo = %v, want muted", got)
	}

	// The trunk echoes the mark once playback finished, lifting the mute.
	r.media.marks <- "greeting"
	waitFor(t, func() bool { return r.sess.ctrl.State() == turn.StateIdle }, "mute gate never lifted")

	// One 20 ms chunk triggers the mocked speech start.
	r.media.audio <- make([]byte, 320)
	waitFor(t, func() bool { return r.sess.ctrl.State() == turn.StateUserSpeaking }, "turn never opened")

	r.sttSess.FinalsCh <- stt.Transcript{Text: "I need help with my order.", IsFinal: true}
	time.Sleep(50 * time.Millisecond)

	// The next chunk triggers the speech end; the classifier verdict
	// completes the turn and the response plays.
	r.media.audio <- make([]byte, 320)
	waitFor(t, func() bool { return r.player.EnqueueCount() == 2 }, "response never enqueued")
	waitFor(t, func() bool {
		lines, err := r.calls.Transcript(ctx, "call-1")
		return err == nil && len(lines) >= 3
	}, "transcript never assembled")

	close(r.media.audio)
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after hangup")
	}

	rec, err := r.calls.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("call record missing: %v", err)
	}
	if rec.EndReason != store.EndHangup {
		t.Errorf("end reason = %q, want hangup", rec.EndReason)
	}
	if rec.EndedAt.IsZero() {
		t.Error("call record not closed")
	}
	if rec.CallerID != "+14155550123" {
		t.Errorf("caller id = %q", rec.CallerID)
	}

	lines, err := r.calls.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("transcript read failed: %v", err)
	}
	if lines[0].Role != store.RoleBot || lines[0].Content != "Hello!" {
		t.Errorf("line 0 = %s %q, want bot greeting", lines[0].Role, lines[0].Content)
	}
	if lines[1].Role != store.RoleCaller || lines[1].Content != "I need help with my order." {
		t.Errorf("line 1 = %s %q, want caller turn", lines[1].Role, lines[1].Content)
	}
	if lines[2].Role != store.RoleBot || lines[2].Content != "Sure, I can help. Goodbye." {
		t.Errorf("line 2 = %s %q, want bot reply", lines[2].Role, lines[2].Content)
	}

	if len(r.llmProv.StreamCompletionCalls) != 1 {
		t.Fatalf("llm called %d times, want 1", len(r.llmProv.StreamCompletionCalls))
	}
	req := r.llmProv.StreamCompletionCalls[0].Req
	if req.SystemPrompt != "You are a phone receptionist." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "assistant" || req.Messages[1].Role != "user" {
		t.Fatalf("history = %+v, want greeting then user turn", req.Messages)
	}

	spoken := strings.Join(r.ttsProv.SynthesizedTextAll(), " ")
	for _, want := range []string{"Hello!", "Sure, I can help.", "Goodbye."} {
		if !strings.Contains(spoken, want) {
			t.Errorf("tts never saw %q (got %q)", want, spoken)
		}
	}
}

func TestSession_BargeInCancelsPlayback(t *testing.T) {
	r := newRig(t, config.AgentConfig{Name: "reception"}, fastTurnConfig())

	now := time.Now()
	r.sess.ctrl.Process(turn.BotSpeechStart(now))
	r.sess.ctrl.Process(turn.VADStart(now))

	if len(r.player.InterruptCalls) != 1 || r.player.InterruptCalls[0] != audio.BargeIn {
		t.Fatalf("interrupts = %v, want one barge-in", r.player.InterruptCalls)
	}
	if r.media.clearCount() != 1 {
		t.Fatalf("clear frames = %d, want 1", r.media.clearCount())
	}
}

func TestSession_InterruptionsDisabledKeepPlayback(t *testing.T) {
	turnCfg := fastTurnConfig()
	turnCfg.Interruptions = false
	r := newRig(t, config.AgentConfig{Name: "reception"}, turnCfg)

	now := time.Now()
	r.sess.ctrl.Process(turn.BotSpeechStart(now))
	r.sess.ctrl.Process(turn.VADStart(now))

	if len(r.player.InterruptCalls) != 0 {
		t.Fatalf("interrupts = %v, want none", r.player.InterruptCalls)
	}
	if r.media.clearCount() != 0 {
		t.Fatalf("clear frames = %d, want 0", r.media.clearCount())
	}
}

func TestSession_TransportErrorRecorded(t *testing.T) {
	r := newRig(t, config.AgentConfig{Name: "reception"}, fastTurnConfig())
	r.media.err = errors.New("socket reset")

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- r.sess.Run(ctx) }()

	close(r.media.audio)

	select {
	case err := <-runErr:
		if err == nil || !strings.Contains(err.Error(), "media stream") {
			t.Fatalf("err = %v, want wrapped media stream error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	rec, err := r.calls.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("call record missing: %v", err)
	}
	if rec.EndReason != store.EndTransportError {
		t.Errorf("end reason = %q, want transport_error", rec.EndReason)
	}
}

func TestSession_ShutdownRecorded(t *testing.T) {
	r := newRig(t, config.AgentConfig{Name: "reception"}, fastTurnConfig())

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.sess.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	rec, err := r.calls.GetCall(context.Background(), "call-1")
	if err != nil {
		t.Fatalf("call record missing: %v", err)
	}
	if rec.EndReason != store.EndShutdown {
		t.Errorf("end reason = %q, want shutdown", rec.EndReason)
	}
}

func TestSession_TimeoutTeardownAddsSystemLine(t *testing.T) {
	r := newRig(t, config.AgentConfig{Name: "reception"}, fastTurnConfig())

	ctx := context.Background()
	r.sess.beginCallRecord(ctx, time.Now())
	r.sess.teardown(store.EndTimeout)

	rec, err := r.calls.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("call record missing: %v", err)
	}
	if rec.EndReason != store.EndTimeout {
		t.Errorf("end reason = %q, want timeout", rec.EndReason)
	}

	lines, err := r.calls.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("transcript read failed: %v", err)
	}
	if len(lines) != 1 || lines[0].Role != store.RoleSystem {
		t.Fatalf("lines = %+v, want one system line", lines)
	}
	if r.sttSess.CloseCallCount != 1 {
		t.Errorf("stt close count = %d, want 1", r.sttSess.CloseCallCount)
	}
	if r.vadSess.CloseCalls != 1 {
		t.Errorf("vad close count = %d, want 1", r.vadSess.CloseCalls)
	}
}

func TestSession_DuplicateFinalSuppressed(t *testing.T) {
	r := newRig(t, config.AgentConfig{Name: "reception"}, fastTurnConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.sess.runTranscripts(ctx)

	now := time.Now()
	r.sess.ctrl.Process(turn.VADStart(now))
	r.sttSess.FinalsCh <- stt.Transcript{Text: "Is it open on Thursday?", IsFinal: true}
	// A reconnecting STT backend re-finalises the same utterance.
	r.sttSess.FinalsCh <- stt.Transcript{Text: "is it open on thursday", IsFinal: true}
	time.Sleep(50 * time.Millisecond)
	r.sess.ctrl.Process(turn.VADStop(time.Now()))

	// No classifier verdict arrives here, so the stop timeout completes the
	// turn with whatever text accumulated.
	select {
	case rec := <-r.sess.turnCh:
		if rec.Text != "Is it open on Thursday?" {
			t.Fatalf("turn text = %q, want the final exactly once", rec.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("turn never completed")
	}
}

func TestNewSession_Validation(t *testing.T) {
	_, err := NewSession(SessionParams{})
	if err == nil {
		t.Fatal("expected error for empty params")
	}

	_, err = NewSession(SessionParams{
		CallID:     "c1",
		Media:      newFakeMedia(),
		Player:     &playermock.Player{},
		SampleRate: 8000,
		Turn:       fastTurnConfig(),
		Pipeline:   Pipeline{},
	})
	if err == nil {
		t.Fatal("expected error for missing providers")
	}
}
