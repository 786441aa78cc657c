package audio_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/voxgate/voxgate/pkg/audio"
)

// checkWAVHeader validates the fixed fields of a 44-byte PCM16 WAV header.
func checkWAVHeader(t *testing.T, data []byte, sampleRate, channels, pcmLen int) {
	t.Helper()
	if len(data) < 44 {
		t.Fatalf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		t.Errorf("missing RIFF marker, got %q", data[0:4])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+pcmLen) {
		t.Errorf("riff size: got %d, want %d", got, 36+pcmLen)
	}
	if string(data[8:12]) != "WAVE" {
		t.Errorf("missing WAVE marker, got %q", data[8:12])
	}
	if string(data[12:16]) != "fmt " {
		t.Errorf("missing fmt chunk, got %q", data[12:16])
	}
	if got := binary.LittleEndian.Uint16(data[20:22]); got != 1 {
		t.Errorf("audio format: got %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != uint16(channels) {
		t.Errorf("channels: got %d, want %d", got, channels)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != uint32(sampleRate) {
		t.Errorf("sample rate: got %d, want %d", got, sampleRate)
	}
	wantByteRate := uint32(sampleRate * channels * 2)
	if got := binary.LittleEndian.Uint32(data[28:32]); got != wantByteRate {
		t.Errorf("byte rate: got %d, want %d", got, wantByteRate)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits per sample: got %d, want 16", got)
	}
	if string(data[36:40]) != "data" {
		t.Errorf("missing data chunk, got %q", data[36:40])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(pcmLen) {
		t.Errorf("data size: got %d, want %d", got, pcmLen)
	}
}

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestEncodeWAVPCM16_Mono8k(t *testing.T) {
	pcm := samplesToBytes([]int16{100, -100, 200, -200})
	out, err := audio.EncodeWAVPCM16(pcm, 8000, 1)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16: %v", err)
	}
	checkWAVHeader(t, out, 8000, 1, len(pcm))
	if !bytes.Equal(out[44:], pcm) {
		t.Error("payload does not match input PCM")
	}
}

func TestEncodeWAVPCM16_Stereo(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	out, err := audio.EncodeWAVPCM16(pcm, 8000, 2)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16: %v", err)
	}
	checkWAVHeader(t, out, 8000, 2, len(pcm))
}

func TestEncodeWAVPCM16_InvalidRate(t *testing.T) {
	if _, err := audio.EncodeWAVPCM16(nil, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := audio.EncodeWAVPCM16(nil, 8000, 0); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestWriteWAVPCM16File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "call.wav")
	pcm := samplesToBytes([]int16{10, 20, 30})
	if err := audio.WriteWAVPCM16File(path, pcm, 8000, 1); err != nil {
		t.Fatalf("WriteWAVPCM16File: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	checkWAVHeader(t, data, 8000, 1, len(pcm))
}

func TestWAVWriter_StreamsAndPatchesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := audio.NewWAVWriter(f, 8000, 1)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}

	chunk1 := samplesToBytes([]int16{1, 2, 3})
	chunk2 := samplesToBytes([]int16{4, 5})
	if _, err := w.Write(chunk1); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if _, err := w.Write(chunk2); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if got := w.BytesWritten(); got != uint32(len(chunk1)+len(chunk2)) {
		t.Errorf("BytesWritten: got %d, want %d", got, len(chunk1)+len(chunk2))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	checkWAVHeader(t, data, 8000, 1, len(chunk1)+len(chunk2))
	if !bytes.Equal(data[44:], append(append([]byte{}, chunk1...), chunk2...)) {
		t.Error("payload does not match written chunks")
	}
}

func TestWAVWriter_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := audio.NewWAVWriter(f, 16000, 1)
	if err != nil {
		t.Fatalf("NewWAVWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := w.Write([]byte{0, 0}); err == nil {
		t.Fatal("expected error writing after close")
	}
}
