package elevenlabs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New with empty API key should fail")
	}

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel || p.outputFormat != defaultOutputFmt {
		t.Errorf("defaults = %q/%q, want %q/%q", p.model, p.outputFormat, defaultModel, defaultOutputFmt)
	}

	p, err = New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_16000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("model = %q, want eleven_multilingual_v2", p.model)
	}
	if p.outputFormat != "pcm_16000" {
		t.Errorf("outputFormat = %q, want pcm_16000", p.outputFormat)
	}
}

func TestStreamURL(t *testing.T) {
	p, err := New("key", WithModel("eleven_flash_v2_5"), WithOutputFormat("pcm_8000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u := p.streamURL("voice-abc123")
	if !strings.HasPrefix(u, "wss://") {
		t.Errorf("stream URL should use the wss scheme: %s", u)
	}
	if !strings.Contains(u, "/voice-abc123/stream-input") {
		t.Errorf("stream URL should route through the voice ID: %s", u)
	}
	if !strings.Contains(u, "model_id=eleven_flash_v2_5") {
		t.Errorf("stream URL should carry the model: %s", u)
	}
	if !strings.Contains(u, "output_format=pcm_8000") {
		t.Errorf("stream URL should carry the output format: %s", u)
	}
}

func TestStreamMessageEncoding(t *testing.T) {
	t.Run("text frame keeps voice settings", func(t *testing.T) {
		data, err := json.Marshal(streamMessage{
			Text:          "Hello there",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Text != "Hello there" {
			t.Errorf("text = %q", msg.Text)
		}
		if msg.VoiceSettings == nil || msg.VoiceSettings.Stability != 0.5 || msg.VoiceSettings.SimilarityBoost != 0.75 {
			t.Errorf("voice settings not carried through: %+v", msg.VoiceSettings)
		}
	})

	t.Run("flush frame is bare", func(t *testing.T) {
		// The flush command must be exactly {"text":""}: no settings, no key.
		data, err := json.Marshal(streamMessage{Text: ""})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if string(raw["text"]) != `""` {
			t.Errorf("text = %s, want empty string", raw["text"])
		}
		if _, ok := raw["voice_settings"]; ok {
			t.Error("flush frame should omit voice_settings")
		}
		if _, ok := raw["xi_api_key"]; ok {
			t.Error("flush frame should omit xi_api_key")
		}
	})
}

func TestSettingsForVoice(t *testing.T) {
	if vs := settingsForVoice(tts.VoiceProfile{ID: "v1", SpeedFactor: 1.2}); vs.Speed != 1.2 {
		t.Errorf("speed = %f, want 1.2", vs.Speed)
	}
	// Zero and 1.0 both mean "let ElevenLabs pick".
	if vs := settingsForVoice(tts.VoiceProfile{ID: "v1"}); vs.Speed != 0 {
		t.Errorf("speed = %f, want omitted for default profile", vs.Speed)
	}
	if vs := settingsForVoice(tts.VoiceProfile{ID: "v1", SpeedFactor: 1.0}); vs.Speed != 0 {
		t.Errorf("speed = %f, want omitted for factor 1.0", vs.Speed)
	}
}

func TestVoicesResponseProfiles(t *testing.T) {
	t.Run("labels and category become metadata", func(t *testing.T) {
		var vr voicesResponse
		err := json.Unmarshal([]byte(`{
			"voices": [
				{
					"voice_id": "abc123",
					"name": "Rachel",
					"category": "premade",
					"labels": {"gender": "female", "accent": "american"}
				},
				{
					"voice_id": "def456",
					"name": "Adam",
					"category": "premade",
					"labels": {"gender": "male"}
				}
			]
		}`), &vr)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		profiles := vr.profiles()
		if len(profiles) != 2 {
			t.Fatalf("profiles = %d, want 2", len(profiles))
		}

		rachel := profiles[0]
		if rachel.ID != "abc123" || rachel.Name != "Rachel" {
			t.Errorf("profile = %q/%q, want abc123/Rachel", rachel.ID, rachel.Name)
		}
		if rachel.Provider != "elevenlabs" {
			t.Errorf("provider = %q, want elevenlabs", rachel.Provider)
		}
		if rachel.Metadata["gender"] != "female" || rachel.Metadata["category"] != "premade" {
			t.Errorf("metadata = %v", rachel.Metadata)
		}
		if profiles[1].ID != "def456" {
			t.Errorf("second profile ID = %q, want def456", profiles[1].ID)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		var vr voicesResponse
		if err := json.Unmarshal([]byte(`{"voices":[]}`), &vr); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := vr.profiles(); len(got) != 0 {
			t.Errorf("profiles = %d, want 0", len(got))
		}
	})

	t.Run("missing labels and category", func(t *testing.T) {
		var vr voicesResponse
		err := json.Unmarshal([]byte(`{
			"voices": [{"voice_id": "x1", "name": "Ghost", "category": "", "labels": null}]
		}`), &vr)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		profiles := vr.profiles()
		if len(profiles) != 1 {
			t.Fatalf("profiles = %d, want 1", len(profiles))
		}
		if _, ok := profiles[0].Metadata["category"]; ok {
			t.Error("empty category should not appear in metadata")
		}
	})
}
