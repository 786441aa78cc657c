// Package elevenlabs implements tts.Provider on the ElevenLabs streaming
// WebSocket API.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/voxgate/voxgate/pkg/provider/tts"
)

const (
	streamEndpoint = "wss://api.elevenlabs.io/v1/text-to-speech"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"
	defaultModel   = "eleven_flash_v2_5"

	// defaultOutputFmt matches the narrowband telephony media stream so no
	// resampling is needed between synthesis and the caller.
	defaultOutputFmt = "pcm_8000"
)

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID, for example "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the audio output format, for example "pcm_8000" or
// "pcm_16000".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// streamMessage is the JSON frame sent over the stream-input WebSocket. The
// first frame carries the API key and voice settings; later frames carry
// text only, and {"text":""} asks ElevenLabs to flush.
type streamMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioFrame is a JSON frame received from ElevenLabs over the WebSocket.
type audioFrame struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// settingsForVoice builds the voice_settings payload for a profile. A speed
// of zero or exactly 1.0 is omitted so ElevenLabs applies its own default.
func settingsForVoice(voice tts.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.SpeedFactor != 0 && voice.SpeedFactor != 1.0 {
		vs.Speed = voice.SpeedFactor
	}
	return vs
}

// streamURL builds the stream-input URL for a voice.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return streamEndpoint + "/" + voiceID + "/stream-input?" + q.Encode()
}

// SynthesizeStream opens a WebSocket to ElevenLabs, forwards text fragments
// from the text channel, and returns a channel of raw PCM chunks. The audio
// channel closes when synthesis completes or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// The opening frame authenticates and configures the stream. ElevenLabs
	// rejects an empty first text value, hence the single space.
	opening, _ := json.Marshal(streamMessage{
		Text:          " ",
		VoiceSettings: settingsForVoice(voice),
		XiAPIKey:      p.apiKey,
	})
	if err := conn.Write(ctx, websocket.MessageText, opening); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake write failed")
		return nil, fmt.Errorf("elevenlabs: handshake: %w", err)
	}

	audioCh := make(chan []byte, 256)
	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			relayAudio(ctx, conn, audioCh)
		}()

		for {
			select {
			case sentence, ok := <-text:
				if !ok {
					// Input finished: ask for a flush, then let the reader
					// drain the remaining audio.
					flush, _ := json.Marshal(streamMessage{Text: ""})
					_ = conn.Write(ctx, websocket.MessageText, flush)
					<-readDone
					return
				}
				if sentence == "" {
					continue
				}
				frame, _ := json.Marshal(streamMessage{Text: sentence})
				if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// relayAudio decodes incoming frames and forwards their PCM payloads until
// the connection closes or ctx is cancelled.
func relayAudio(ctx context.Context, conn *websocket.Conn, audioCh chan<- []byte) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame audioFrame
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Audio == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			continue
		}
		select {
		case audioCh <- pcm:
		case <-ctx.Done():
			return
		}
	}
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices returns all voices available to the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.profiles(), nil
}

// profiles converts the API voice list into VoiceProfile values, folding the
// category into the label metadata.
func (vr voicesResponse) profiles() []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out = append(out, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return out
}
