// Package transport implements the telephony media leg: a WebSocket endpoint
// the trunk connects to when a call is answered, exchanging JSON frames with
// base64-encoded PCM payloads.
//
// Frame protocol (Plivo-compatible trunks):
//
//	trunk -> gateway: {"event":"start","start":{"callId":...,"streamId":...,"from":...,"to":...}}
//	trunk -> gateway: {"event":"media","media":{"payload":"<base64 pcm>"}}
//	trunk -> gateway: {"event":"mark","mark":{"name":...}}   playback checkpoint echo
//	trunk -> gateway: {"event":"stop"}
//	gateway -> trunk: {"event":"media","streamId":...,"media":{"payload":...}}
//	gateway -> trunk: {"event":"mark","streamId":...,"mark":{"name":...}}
//	gateway -> trunk: {"event":"clear","streamId":...}       flush buffered playback
package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// FrameType identifies a decoded inbound frame.
type FrameType int

const (
	// FrameStart carries the call metadata. Always the first frame.
	FrameStart FrameType = iota

	// FrameMedia carries one chunk of caller audio.
	FrameMedia

	// FrameMark is the trunk echoing a playback checkpoint.
	FrameMark

	// FrameStop signals the trunk ended the stream (hangup).
	FrameStop
)

// StartInfo is the call metadata from the trunk's start frame.
type StartInfo struct {
	CallID   string `json:"callId"`
	StreamID string `json:"streamId"`
	// From and To are E.164 phone numbers.
	From string `json:"from"`
	To   string `json:"to"`
	// Direction is "inbound" or "outbound".
	Direction string `json:"direction"`
	// SampleRate of the media stream in Hz. 0 means the trunk default (8000).
	SampleRate int `json:"sampleRate"`
}

// CallerNumber returns the phone number of the human side of the call.
func (s StartInfo) CallerNumber() string {
	if s.Direction == "outbound" {
		return s.To
	}
	return s.From
}

// Frame is one decoded inbound frame.
type Frame struct {
	Type  FrameType
	Start StartInfo
	// Audio is the decoded PCM payload of a media frame.
	Audio []byte
	// Mark is the checkpoint name of a mark frame.
	Mark string
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

// envelope is the wire form of every frame, inbound and outbound.
type envelope struct {
	Event    string        `json:"event"`
	StreamID string        `json:"streamId,omitempty"`
	Start    *StartInfo    `json:"start,omitempty"`
	Media    *mediaPayload `json:"media,omitempty"`
	Mark     *markPayload  `json:"mark,omitempty"`
}

// DecodeFrame parses one inbound wire message.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("transport: decode frame: %w", err)
	}

	switch env.Event {
	case "start":
		if env.Start == nil {
			return Frame{}, fmt.Errorf("transport: start frame without start payload")
		}
		return Frame{Type: FrameStart, Start: *env.Start}, nil

	case "media":
		if env.Media == nil {
			return Frame{}, fmt.Errorf("transport: media frame without media payload")
		}
		audio, err := base64.StdEncoding.DecodeString(env.Media.Payload)
		if err != nil {
			return Frame{}, fmt.Errorf("transport: decode media payload: %w", err)
		}
		return Frame{Type: FrameMedia, Audio: audio}, nil

	case "mark":
		if env.Mark == nil {
			return Frame{}, fmt.Errorf("transport: mark frame without mark payload")
		}
		return Frame{Type: FrameMark, Mark: env.Mark.Name}, nil

	case "stop":
		return Frame{Type: FrameStop}, nil

	default:
		return Frame{}, fmt.Errorf("transport: unknown frame event %q", env.Event)
	}
}

// Serializer encodes outbound frames for one stream. A Serializer is bound to
// the stream ID from the start frame.
type Serializer struct {
	streamID string
}

// NewSerializer returns a Serializer for the given stream ID.
func NewSerializer(streamID string) *Serializer {
	return &Serializer{streamID: streamID}
}

// EncodeMedia wraps one PCM chunk in a media frame.
func (s *Serializer) EncodeMedia(pcm []byte) ([]byte, error) {
	return s.encode(envelope{
		Event:    "media",
		StreamID: s.streamID,
		Media:    &mediaPayload{Payload: base64.StdEncoding.EncodeToString(pcm)},
	})
}

// EncodeMark builds a playback checkpoint frame. The trunk echoes the mark
// back once all media sent before it has been played out.
func (s *Serializer) EncodeMark(name string) ([]byte, error) {
	return s.encode(envelope{
		Event:    "mark",
		StreamID: s.streamID,
		Mark:     &markPayload{Name: name},
	})
}

// EncodeClear builds a clear frame telling the trunk to drop any media it has
// buffered but not yet played. Sent on barge-in.
func (s *Serializer) EncodeClear() ([]byte, error) {
	return s.encode(envelope{Event: "clear", StreamID: s.streamID})
}

func (s *Serializer) encode(env envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s frame: %w", env.Event, err)
	}
	return data, nil
}
