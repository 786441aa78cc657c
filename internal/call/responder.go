package call

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// Playback priorities. The greeting outranks regular responses so a queued
// response can never displace it.
const (
	greetingPriority = 10
	responsePriority = 5
)

// runResponder plays the greeting, then answers each completed user turn
// until the session ends.
func (s *Session) runResponder(ctx context.Context) error {
	if greeting := strings.TrimSpace(s.p.Agent.Greeting); greeting != "" {
		s.playGreeting(ctx, greeting)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-s.turnCh:
			s.respond(ctx, rec)
		}
	}
}

func (s *Session) playGreeting(ctx context.Context, greeting string) {
	textCh := make(chan string, 1)
	textCh <- greeting
	close(textCh)

	if err := s.speak(ctx, "greeting", textCh, greetingPriority); err != nil {
		s.log.Error("greeting synthesis failed", "error", err)
		// The mute gate would hold forever without a bot utterance to end it.
		s.ctrl.Process(turn.BotSpeechStart(time.Now()))
		s.ctrl.Process(turn.BotSpeechStop(time.Now()))
		return
	}

	s.appendHistory(llm.Message{Role: "assistant", Content: greeting})
	if err := s.asm.AddBotLine(ctx, greeting, time.Now()); err != nil {
		s.log.Warn("transcript append failed", "error", err)
	}
}

// respond runs one user turn through the LLM and streams the reply, sentence
// by sentence, into TTS and the playout queue. Barge-in cancels the response
// context, which stops both streams mid-flight.
func (s *Session) respond(ctx context.Context, rec turn.Record) {
	kept, err := s.asm.AddUserFinal(ctx, rec.Text, rec.Timestamp)
	if err != nil {
		s.log.Warn("transcript append failed", "error", err)
	}
	if !kept {
		// A repeated utterance gets no second answer.
		return
	}

	respCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelResp = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelResp = nil
		s.mu.Unlock()
	}()

	s.appendHistory(llm.Message{Role: "user", Content: rec.Text})
	req := llm.CompletionRequest{
		Messages:     s.historyCopy(),
		SystemPrompt: s.systemPrompt(),
	}

	started := time.Now()
	chunks, err := s.p.Pipeline.LLM.StreamCompletion(respCtx, req)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "llm", "stream")
		s.log.Error("llm stream failed", "error", err)
		return
	}

	textCh := make(chan string, 8)
	if err := s.speak(respCtx, "response", textCh, responsePriority); err != nil {
		s.metrics.RecordProviderError(ctx, "tts", "synthesize")
		s.log.Error("tts stream failed", "error", err)
		close(textCh)
		audio.Drain(chunks)
		return
	}

	// spoken collects only the sentences that were actually handed to TTS,
	// so an interrupted response is logged as what the caller heard.
	var spoken []string
	var pending string
	cancelled := false
	for chunk := range chunks {
		if cancelled {
			continue
		}
		if chunk.FinishReason == "error" {
			s.log.Error("llm stream aborted", "message", chunk.Text)
			break
		}
		pending += chunk.Text

		var done []string
		done, pending = splitSentences(pending)
		for _, sentence := range done {
			select {
			case textCh <- sentence:
				spoken = append(spoken, sentence)
			case <-respCtx.Done():
				cancelled = true
			}
			if cancelled {
				break
			}
		}
	}
	if !cancelled {
		if rest := strings.TrimSpace(pending); rest != "" {
			select {
			case textCh <- rest:
				spoken = append(spoken, rest)
			case <-respCtx.Done():
			}
		}
	}
	close(textCh)
	s.metrics.LLMDuration.Record(ctx, time.Since(started).Seconds())

	reply := strings.Join(spoken, " ")
	if reply == "" {
		return
	}
	s.appendHistory(llm.Message{Role: "assistant", Content: reply})
	if err := s.asm.AddBotLine(ctx, reply, time.Now()); err != nil {
		s.log.Warn("transcript append failed", "error", err)
	}
	s.trimHistory()
}

// speak starts a TTS stream over textCh and enqueues the resulting audio as
// one playback segment. It returns once synthesis has started; audio then
// flows to the player in the background. When synthesis ends, a mark frame is
// sent so the trunk's echo reports actual playback completion.
func (s *Session) speak(ctx context.Context, source string, textCh <-chan string, priority int) error {
	synthStart := time.Now()
	audioCh, err := s.p.Pipeline.TTS.SynthesizeStream(ctx, textCh, s.voice())
	if err != nil {
		return err
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for chunk := range audioCh {
			if s.p.TTSSampleRate != s.p.SampleRate {
				chunk = audio.ResampleMono16(chunk, s.p.TTSSampleRate, s.p.SampleRate)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				audio.Drain(audioCh)
				return
			}
		}
		s.metrics.TTSDuration.Record(context.Background(), time.Since(synthStart).Seconds())
		if err := s.p.Media.SendMark(context.Background(), source); err != nil {
			s.log.Debug("mark frame not sent", "error", err)
		}
	}()

	s.ctrl.Process(turn.BotSpeechStart(time.Now()))
	s.p.Player.Enqueue(&audio.Segment{
		Source:     source,
		Audio:      out,
		SampleRate: s.p.SampleRate,
		Channels:   1,
		Priority:   priority,
	}, priority)
	return nil
}

func (s *Session) voice() tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:          s.p.Agent.Voice.VoiceID,
		Provider:    s.p.Agent.Voice.Provider,
		SpeedFactor: s.p.Agent.Voice.SpeedFactor,
	}
}

func (s *Session) appendHistory(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

func (s *Session) historyCopy() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) systemPrompt() string {
	s.mu.Lock()
	block := s.memoryBlock
	s.mu.Unlock()

	if block == "" {
		return s.p.Agent.SystemPrompt
	}
	return s.p.Agent.SystemPrompt + "\n\n" + block
}

// trimHistory drops the oldest exchanges once the conversation no longer fits
// the model's context window alongside its output budget.
func (s *Session) trimHistory() {
	caps := s.p.Pipeline.LLM.Capabilities()
	if caps.ContextWindow <= 0 {
		return
	}
	budget := caps.ContextWindow - caps.MaxOutputTokens
	if budget <= 0 {
		budget = caps.ContextWindow / 2
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.history) > 2 {
		n, err := s.p.Pipeline.LLM.CountTokens(s.history)
		if err != nil || n <= budget {
			return
		}
		s.history = append(s.history[:0], s.history[2:]...)
	}
}

// splitSentences cuts the accumulated LLM text at sentence boundaries,
// returning the complete sentences and the unterminated remainder. A
// terminator only counts when followed by whitespace, so decimals and
// abbreviations stay intact. The final sentence of a stream surfaces as the
// remainder and is flushed by the caller when the stream closes.
func splitSentences(text string) (complete []string, rest string) {
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}

		end := i + 1
		for end < len(runes) && (runes[end] == '"' || runes[end] == '\'' || runes[end] == ')') {
			end++
		}
		if end >= len(runes) || !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}

		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			complete = append(complete, sentence)
		}
		start = end
		i = end - 1
	}
	return complete, strings.TrimLeft(string(runes[start:]), " \t\n")
}
