// Package mock provides test doubles for the stt package interfaces.
//
// Provider records StartStream invocations so tests can assert on the
// StreamConfig a caller used. Session exposes its transcript channels
// directly; tests feed them and close them to script a recognition stream.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/stt"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// StartStreamCall is one recorded Provider.StartStream invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a scriptable stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is handed out by StartStream. When nil, each call returns a
	// fresh Session with buffered channels.
	Session stt.SessionHandle

	// StartStreamErr makes StartStream fail.
	StartStreamErr error

	// StartStreamCalls records every StartStream invocation in order.
	StartStreamCalls []StartStreamCall
}

func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}, nil
}

// Session is a scriptable stt.SessionHandle. The test owns PartialsCh and
// FinalsCh: send the transcripts the consumer should see, then close them.
type Session struct {
	mu sync.Mutex

	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// SentAudio accumulates copies of every chunk passed to SendAudio.
	SentAudio [][]byte

	// CloseCallCount counts Close invocations.
	CloseCallCount int
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}
