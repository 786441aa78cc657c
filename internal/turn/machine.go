package turn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/observe"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics recorder. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithBotCancel sets the callback invoked when an allowed interruption must
// cancel in-flight bot playback.
func WithBotCancel(fn func()) Option {
	return func(c *Controller) { c.cancelBot = fn }
}

// WithUserStarted sets the callback invoked when a new user turn opens.
func WithUserStarted(fn func(time.Time)) Option {
	return func(c *Controller) { c.userStarted = fn }
}

// WithUserStopped sets the callback invoked after a completed turn has been
// emitted to the sink. The sink emission always happens first so downstream
// consumers observe the final transcript before the stop notification.
func WithUserStopped(fn func(Record)) Option {
	return func(c *Controller) { c.userStopped = fn }
}

// Controller is the authoritative owner of one call's turn state. Signals
// from all sources funnel through Process; no two signals for the same call
// are ever evaluated concurrently. The only asynchronous actor is the timeout
// guard's timer, which re-enters through the same lock.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	sink    *Sink

	cancelBot   func()
	userStarted func(time.Time)
	userStopped func(Record)

	mu          sync.Mutex
	closed      bool
	state       State
	botSpeaking bool
	pending     *PendingTurn
	gate        muteGate
	guard       timeoutGuard

	// evalGen identifies the current completion evaluation. Timer fires and
	// classifier verdicts from a superseded evaluation are stale no-ops.
	evalGen   uint64
	decided   bool
	evalSince time.Time
	turnSeq   uint64
}

// New builds a controller for one call. cfg is validated and then frozen for
// the controller's lifetime. The initial state is MUTED when
// cfg.MuteUntilBotReady is set, IDLE otherwise.
func New(cfg Config, sink *Sink, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("turn controller: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("turn controller: sink must not be nil")
	}
	c := &Controller{
		cfg:  cfg,
		log:  slog.Default(),
		sink: sink,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if cfg.MuteUntilBotReady {
		c.gate.activate()
		c.state = StateMuted
	}
	return c, nil
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Process consumes one signal. Safe for concurrent use; intake is serialized
// internally. Downstream callbacks (sink consumer, bot cancel, user
// started/stopped) run after the state transition, outside the lock, in the
// order they were decided.
func (c *Controller) Process(sig Signal) {
	c.mu.Lock()
	calls := c.process(sig)
	c.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// Mute engages the gate from any state, discarding any partially accumulated
// turn without emission.
func (c *Controller) Mute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == StateMuted {
		return
	}
	c.guard.disarm()
	c.evalGen++
	c.decided = false
	if c.pending != nil {
		c.log.Debug("pending turn discarded on mute", "seq", c.pending.seq)
		c.pending = nil
	}
	c.gate.activate()
	c.state = StateMuted
}

// Close tears the controller down: the timer is disarmed and any pending turn
// is discarded without emission. A half-finished turn at hangup is not
// flushed; no further context from the caller will arrive. Subsequent
// signals are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.guard.disarm()
	if c.pending != nil {
		c.log.Debug("pending turn discarded on teardown", "seq", c.pending.seq)
		c.pending = nil
	}
	c.state = StateIdle
}

// process applies one signal under the lock and returns the callbacks to run
// after unlocking.
func (c *Controller) process(sig Signal) []func() {
	if c.closed {
		return nil
	}

	if c.state == StateMuted {
		switch sig.Kind {
		case SignalBotSpeechStart:
			c.botSpeaking = true
		case SignalBotSpeechStop:
			if c.gate.deactivate() {
				c.botSpeaking = false
				c.state = StateIdle
				c.log.Info("greeting finished, user signals unmuted")
			}
		default:
			c.log.Debug("signal dropped while muted", "kind", sig.Kind.String())
			c.metrics.RecordSignalDropped(context.Background(), sig.Kind.String())
		}
		return nil
	}

	switch sig.Kind {
	case SignalBotSpeechStart:
		c.botSpeaking = true
		return nil
	case SignalBotSpeechStop:
		c.gate.deactivate()
		c.botSpeaking = false
		return nil
	case SignalVADStart:
		return c.handleVADStart(sig)
	case SignalVADStop:
		c.handleVADStop(sig)
		return nil
	case SignalClassifierScore:
		return c.handleClassifier(sig)
	case SignalTranscriptInterim, SignalTranscriptFinal:
		c.handleTranscript(sig)
		return nil
	default:
		return nil
	}
}

func (c *Controller) handleVADStart(sig Signal) []func() {
	var calls []func()

	if c.botSpeaking {
		dec := decideInterruption(c.cfg.Interruptions, false, true, c.state)
		c.metrics.RecordInterruption(context.Background(), dec.Allow, dec.Reason)
		c.log.Debug("interruption arbitrated", "allow", dec.Allow, "reason", dec.Reason)
		if dec.Allow {
			c.botSpeaking = false
			if c.cancelBot != nil {
				calls = append(calls, c.cancelBot)
			}
		}
	}

	switch c.state {
	case StateIdle:
		c.turnSeq++
		c.pending = newPendingTurn(c.turnSeq, sig.Timestamp)
		c.state = StateUserSpeaking
		c.log.Debug("user turn opened", "seq", c.turnSeq)
		if c.userStarted != nil {
			ts := sig.Timestamp
			calls = append(calls, func() { c.userStarted(ts) })
		}
	case StateEvaluatingEnd:
		// User resumed before a decision was final. Cancel the evaluation and
		// keep accumulating into the same turn.
		c.guard.disarm()
		c.evalGen++
		c.decided = false
		c.state = StateUserSpeaking
		c.log.Debug("user resumed, completion evaluation cancelled", "seq", c.turnSeq)
	case StateUserSpeaking:
		// Duplicate start, no-op.
	}
	return calls
}

func (c *Controller) handleVADStop(sig Signal) {
	if c.state != StateUserSpeaking {
		// Stop without a matching start is a no-op, not an error.
		return
	}
	c.state = StateEvaluatingEnd
	c.decided = false
	c.evalGen++
	c.evalSince = sig.Timestamp

	wait := c.cfg.StopTimeout
	if !c.cfg.Classifier.Enabled {
		wait = c.cfg.SilenceFallback
	}
	c.guard.arm(wait, c.evalGen, c.timeoutFired)
	c.log.Debug("evaluating end of turn", "seq", c.turnSeq, "deadline", wait)
}

func (c *Controller) handleClassifier(sig Signal) []func() {
	if c.state != StateEvaluatingEnd || c.decided {
		// First decision wins; a verdict landing after the timeout already
		// forced the turn complete is stale.
		c.log.Debug("stale classifier verdict ignored", "completeness", sig.Completeness)
		return nil
	}
	if sig.Completeness <= 0.5 {
		// INCOMPLETE: keep waiting, the timeout guard remains the backstop.
		return nil
	}
	if sig.Confidence < c.cfg.Classifier.CompleteThreshold {
		return nil
	}
	return c.complete(ReasonClassifier, sig.Timestamp)
}

func (c *Controller) handleTranscript(sig Signal) {
	if c.pending == nil {
		// Transcript with no open turn, e.g. a final arriving after the turn
		// flushed. Nothing to attach it to.
		c.log.Debug("transcript without open turn dropped", "kind", sig.Kind.String())
		return
	}
	if sig.Kind == SignalTranscriptFinal {
		c.pending.AppendFinal(sig.Text)
	} else {
		c.pending.SetInterim(sig.Text)
	}
}

// timeoutFired is the guard's re-entry point. The generation check rejects
// fires that lost the race against a disarm or a newer evaluation.
func (c *Controller) timeoutFired(gen uint64) {
	c.mu.Lock()
	var calls []func()
	if !c.closed && c.state == StateEvaluatingEnd && !c.decided && gen == c.evalGen {
		reason := ReasonTimeout
		if !c.cfg.Classifier.Enabled {
			reason = ReasonSilence
		}
		calls = c.complete(reason, time.Now())
	}
	c.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// complete finishes the current turn. Must be called with the lock held and
// only from EVALUATING_END with decided unset.
func (c *Controller) complete(reason DecisionReason, at time.Time) []func() {
	c.decided = true
	c.guard.disarm()
	c.state = StateUserTurnComplete

	p := c.pending
	c.pending = nil

	ctx := context.Background()
	c.metrics.RecordTurnDecision(ctx, string(reason))
	if !c.evalSince.IsZero() && at.After(c.evalSince) {
		c.metrics.RecordEvalLatency(ctx, at.Sub(c.evalSince).Seconds())
	}

	var calls []func()
	if p == nil || p.Empty() {
		// Silence or noise blip: nothing transcribed, nothing to emit.
		c.log.Debug("empty turn discarded", "reason", string(reason))
	} else {
		rec := Record{Seq: p.seq, Role: RoleUser, Text: p.Text(), Timestamp: p.Started()}
		c.metrics.RecordTurnDuration(ctx, at.Sub(p.Started()).Seconds())
		c.log.Info("user turn complete",
			"seq", rec.Seq,
			"reason", string(reason),
			"chars", len(rec.Text))
		calls = append(calls, func() { c.sink.Emit(rec) })
		if c.userStopped != nil {
			calls = append(calls, func() { c.userStopped(rec) })
		}
	}

	c.state = StateIdle
	return calls
}
