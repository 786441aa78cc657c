// Package call wires one live telephony call: the media stream feeds VAD,
// STT, and the end-of-turn classifier; their signals drive the turn
// controller; completed turns drive the LLM/TTS response loop whose audio
// flows back to the trunk through the playout queue. The Manager accepts
// calls from the transport and builds one Session per call.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/store"
	"github.com/voxgate/voxgate/internal/transcript"
	"github.com/voxgate/voxgate/internal/transport"
	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/memory"
	"github.com/voxgate/voxgate/pkg/provider/embeddings"
	"github.com/voxgate/voxgate/pkg/provider/eot"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	"github.com/voxgate/voxgate/pkg/provider/vad"
)

// Media is the transport surface one session needs from its telephony leg.
// *transport.MediaStream implements it; tests substitute a fake.
type Media interface {
	Start() transport.StartInfo
	Audio() <-chan []byte
	Marks() <-chan string
	SendAudio(ctx context.Context, pcm []byte) error
	SendMark(ctx context.Context, name string) error
	SendClear(ctx context.Context) error
	Err() error
}

// Compile-time interface assertion.
var _ Media = (*transport.MediaStream)(nil)

// Pipeline bundles the per-call provider handles and stores a session runs
// against. VAD, STT, TTS, LLM, and Calls are required; EOT, Embedder, and
// Memory are optional and disable their features when nil.
type Pipeline struct {
	VAD      vad.SessionHandle
	STT      stt.SessionHandle
	EOT      eot.Classifier
	TTS      tts.Provider
	LLM      llm.Provider
	Embedder embeddings.Provider
	Memory   memory.Store
	Calls    store.Store
}

// SessionParams carries everything needed to construct a [Session].
type SessionParams struct {
	CallID string
	Agent  config.AgentConfig
	Turn   turn.Config

	// SampleRate is the trunk leg's PCM rate in Hz.
	SampleRate int

	// TTSSampleRate is the rate the TTS provider synthesises at. Zero means
	// it already matches SampleRate; otherwise outbound audio is resampled.
	TTSSampleRate int

	// RecordingsDir is where the call WAV is written at teardown. Ignored
	// when Recorder is nil.
	RecordingsDir string

	Media    Media
	Pipeline Pipeline
	Player   audio.Player
	Recorder *Recorder

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Session owns the full pipeline of one live call. Create it with
// [NewSession] and drive it with [Session.Run], which blocks until hangup,
// session timeout, or transport failure.
type Session struct {
	p       SessionParams
	log     *slog.Logger
	metrics *observe.Metrics

	ctrl     *turn.Controller
	asm      *transcript.Assembler
	sttDedup *transcript.Deduper
	window   *captureWindow

	turnCh chan turn.Record

	mu          sync.Mutex
	history     []llm.Message
	memoryBlock string
	cancelResp  context.CancelFunc
}

// NewSession validates params and assembles the session pipeline. The turn
// controller is created here so its mute gate matches the agent's greeting.
func NewSession(p SessionParams) (*Session, error) {
	switch {
	case p.CallID == "":
		return nil, errors.New("call: session needs a call id")
	case p.Media == nil:
		return nil, errors.New("call: session needs a media stream")
	case p.Player == nil:
		return nil, errors.New("call: session needs a player")
	case p.Pipeline.VAD == nil, p.Pipeline.STT == nil, p.Pipeline.TTS == nil,
		p.Pipeline.LLM == nil, p.Pipeline.Calls == nil:
		return nil, errors.New("call: pipeline is missing a required provider")
	case p.SampleRate <= 0:
		return nil, fmt.Errorf("call: invalid sample rate %d", p.SampleRate)
	}
	if p.TTSSampleRate == 0 {
		p.TTSSampleRate = p.SampleRate
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Metrics == nil {
		p.Metrics = observe.DefaultMetrics()
	}

	s := &Session{
		p:        p,
		log:      p.Logger,
		metrics:  p.Metrics,
		asm:      transcript.NewAssembler(p.CallID, p.Pipeline.Calls, transcript.NewDeduper()),
		sttDedup: transcript.NewDeduper(),
		turnCh:   make(chan turn.Record, 16),
	}
	if p.Turn.Classifier.Enabled && p.Pipeline.EOT != nil {
		s.window = newCaptureWindow(p.Turn.Classifier.PreSpeech+p.Turn.Classifier.MaxWindow, p.SampleRate)
	}

	sink := turn.NewSink(s.consumeTurn, s.log)
	ctrl, err := turn.New(p.Turn, sink,
		turn.WithLogger(s.log),
		turn.WithMetrics(s.metrics),
		turn.WithBotCancel(s.bargeIn),
	)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// consumeTurn is the sink consumer. It must not block the controller's
// callback path, so a backlogged responder drops the record with a warning.
func (s *Session) consumeTurn(rec turn.Record) error {
	select {
	case s.turnCh <- rec:
		return nil
	default:
		s.log.Warn("turn record dropped, responder backlogged", "seq", rec.Seq)
		return errors.New("call: responder backlogged")
	}
}

// Run drives the call until the trunk hangs up, the session timeout fires,
// the transport fails, or ctx is cancelled. It persists the call record,
// recording, and caller memory at teardown. Run blocks and must be called
// exactly once.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if d := s.p.Agent.SessionTimeout(); d > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, d)
		defer cancelTimeout()
	}

	startedAt := time.Now()
	s.beginCallRecord(runCtx, startedAt)
	s.bootstrapMemory(runCtx)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// Hangup ends the whole session, not just the media loop.
		defer cancelRun()
		return s.runMedia(gctx)
	})
	g.Go(func() error { return s.runTranscripts(gctx) })
	g.Go(func() error { return s.runMarks(gctx) })
	g.Go(func() error { return s.runResponder(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	reason := store.EndHangup
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		reason = store.EndTimeout
	case ctx.Err() != nil:
		reason = store.EndShutdown
	case s.p.Media.Err() != nil:
		reason = store.EndTransportError
	}
	s.teardown(reason)

	if mediaErr := s.p.Media.Err(); mediaErr != nil {
		return fmt.Errorf("call: media stream: %w", mediaErr)
	}
	return err
}

// teardown closes the pipeline and persists what the call produced. Every
// step is best-effort; a failing store never masks how the call ended.
func (s *Session) teardown(reason string) {
	s.ctrl.Close()
	s.p.Player.Interrupt(audio.Shutdown)
	if err := s.p.Pipeline.STT.Close(); err != nil {
		s.log.Debug("stt session close failed", "error", err)
	}
	if err := s.p.Pipeline.VAD.Close(); err != nil {
		s.log.Debug("vad session close failed", "error", err)
	}

	endCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if reason == store.EndTimeout {
		if err := s.asm.AddSystemLine(endCtx, "session timeout reached, call ended", time.Now()); err != nil {
			s.log.Warn("transcript append failed", "error", err)
		}
	}

	var recordingPath string
	if s.p.Recorder != nil {
		path, err := s.p.Recorder.Save(s.p.RecordingsDir, s.p.CallID)
		if err != nil {
			s.log.Warn("call recording not saved", "error", err)
		} else {
			recordingPath = path
		}
	}

	if err := s.p.Pipeline.Calls.EndCall(endCtx, s.p.CallID, time.Now(), reason, recordingPath); err != nil {
		s.log.Warn("call record not closed", "error", err)
	}
	s.ingestMemory(endCtx)

	s.log.Info("call ended", "reason", reason, "recording", recordingPath)
}

func (s *Session) beginCallRecord(ctx context.Context, startedAt time.Time) {
	rec := store.CallRecord{
		CallID:    s.p.CallID,
		AgentID:   s.p.Agent.Name,
		CallerID:  s.p.Media.Start().CallerNumber(),
		StartedAt: startedAt,
	}
	if err := s.p.Pipeline.Calls.BeginCall(ctx, rec); err != nil {
		s.log.Warn("call record not created", "error", err)
	}
}

// runMedia consumes caller audio until hangup: each chunk is recorded, fed
// to the classifier window, scored by VAD, and forwarded to STT.
func (s *Session) runMedia(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-s.p.Media.Audio():
			if !ok {
				return nil
			}
			s.handleAudio(ctx, chunk)
		}
	}
}

func (s *Session) handleAudio(ctx context.Context, chunk []byte) {
	now := time.Now()
	if s.p.Recorder != nil {
		s.p.Recorder.WriteCaller(chunk)
	}
	if s.window != nil {
		s.window.Append(chunk)
	}

	ev, err := s.p.Pipeline.VAD.ProcessFrame(chunk)
	if err != nil {
		s.log.Debug("vad frame rejected", "error", err)
	} else {
		switch ev.Type {
		case vad.VADSpeechStart:
			s.ctrl.Process(turn.VADStart(now))
		case vad.VADSpeechEnd:
			s.ctrl.Process(turn.VADStop(now))
			s.classify(ctx)
		}
	}

	if err := s.p.Pipeline.STT.SendAudio(chunk); err != nil {
		s.log.Debug("stt send failed", "error", err)
	}
}

// classify ships the trailing audio window to the end-of-turn classifier and
// feeds the verdict back as a signal. The controller's stop timeout remains
// the backstop, so a slow or failing classifier costs latency, not turns.
func (s *Session) classify(ctx context.Context) {
	if s.window == nil {
		return
	}
	win := s.window.Snapshot()
	if len(win) == 0 {
		return
	}

	go func() {
		cctx, cancel := context.WithTimeout(ctx, s.p.Turn.StopTimeout)
		defer cancel()

		started := time.Now()
		verdict, err := s.p.Pipeline.EOT.Classify(cctx, win, s.p.SampleRate)
		s.metrics.ClassifierDuration.Record(context.Background(), time.Since(started).Seconds())
		if err != nil {
			s.log.Debug("end-of-turn classification failed", "error", err)
			return
		}

		completeness := 0.0
		if verdict.Complete {
			completeness = 1.0
		}
		s.ctrl.Process(turn.ClassifierScore(time.Now(), completeness, verdict.Probability))
	}()
}

// runTranscripts pumps STT output into the controller. Finals are run through
// the deduper first so a reconnecting STT backend cannot double the turn text.
func (s *Session) runTranscripts(ctx context.Context) error {
	partials := s.p.Pipeline.STT.Partials()
	finals := s.p.Pipeline.STT.Finals()

	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.ctrl.Process(turn.TranscriptInterim(time.Now(), t.Text))
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			now := time.Now()
			if s.sttDedup.IsDuplicate(t.Text, now) {
				s.log.Debug("duplicate stt final suppressed", "chars", len(t.Text))
				continue
			}
			s.ctrl.Process(turn.TranscriptFinal(now, t.Text))
		}
	}
	return nil
}

// runMarks turns echoed playback checkpoints into BOT_SPEECH_STOP signals.
// The trunk echoes a mark once it has played everything queued before it, so
// the echo is the closest observable to "the caller stopped hearing the bot".
func (s *Session) runMarks(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name, ok := <-s.p.Media.Marks():
			if !ok {
				return nil
			}
			s.log.Debug("playback mark echoed", "mark", name)
			s.ctrl.Process(turn.BotSpeechStop(time.Now()))
		}
	}
}

// bargeIn is the controller's cancel callback: the caller took the floor, so
// the in-flight response stops, queued playback is flushed, and the trunk is
// told to drop its own buffer.
func (s *Session) bargeIn() {
	s.mu.Lock()
	cancel := s.cancelResp
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.p.Player.Interrupt(audio.BargeIn)
	if err := s.p.Media.SendClear(context.Background()); err != nil {
		s.log.Debug("clear frame not sent", "error", err)
	}
	s.log.Info("bot speech interrupted by caller")
}
