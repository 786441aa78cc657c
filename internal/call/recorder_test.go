package call

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestInterleaveStereo(t *testing.T) {
	left := []byte{0x01, 0x02, 0x03, 0x04}
	right := []byte{0x11, 0x12}

	got := interleaveStereo(left, right)
	want := []byte{
		0x01, 0x02, 0x11, 0x12,
		0x03, 0x04, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("interleaved = %v, want %v", got, want)
	}
}

func TestRecorder_SaveWritesStereoWAV(t *testing.T) {
	r := NewRecorder(8000)
	r.WriteCaller(bytes.Repeat([]byte{0x01}, 320))
	r.WriteBot(bytes.Repeat([]byte{0x02}, 160))

	dir := t.TempDir()
	path, err := r.Save(dir, "call-42")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if path != filepath.Join(dir, "call-42.wav") {
		t.Fatalf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	// 44-byte header plus both tracks padded to the longer one, interleaved.
	if want := 44 + 2*320; len(data) != want {
		t.Fatalf("file size = %d, want %d", len(data), want)
	}
	if !bytes.Equal(data[:4], []byte("RIFF")) {
		t.Errorf("missing RIFF header: %q", data[:4])
	}
}

func TestRecorder_SaveWithoutAudioIsNoOp(t *testing.T) {
	r := NewRecorder(8000)

	path, err := r.Save(t.TempDir(), "call-43")
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty", path)
	}
}
