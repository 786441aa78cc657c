package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
	wavFormatPCM  = 1
)

// EncodeWAVPCM16 wraps raw 16-bit little-endian PCM in a WAV container.
func EncodeWAVPCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16To(&buf, pcm, sampleRate, channels); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16File writes raw 16-bit little-endian PCM as a WAV file.
func WriteWAVPCM16File(path string, pcm []byte, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav %q: %w", path, err)
	}
	defer f.Close()
	if err := WriteWAVPCM16To(f, pcm, sampleRate, channels); err != nil {
		return fmt.Errorf("audio: write wav %q: %w", path, err)
	}
	return nil
}

// WriteWAVPCM16To writes raw 16-bit little-endian PCM to out as a WAV stream.
func WriteWAVPCM16To(out io.Writer, pcm []byte, sampleRate, channels int) error {
	w := bufio.NewWriter(out)
	if err := writeWAVHeader(w, sampleRate, channels, uint32(len(pcm))); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// writeWAVHeader emits the 44-byte RIFF/WAVE/fmt/data preamble for PCM16LE.
func writeWAVHeader(w io.Writer, sampleRate, channels int, dataSize uint32) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audio: wav sample rate %d is invalid", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("audio: wav channel count %d is invalid", channels)
	}

	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	if _, err := io.WriteString(w, "RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(wavHeaderSize-8)+dataSize); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := io.WriteString(w, "fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(wavFormatPCM)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(channels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := io.WriteString(w, "data"); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, dataSize)
}

// WAVWriter streams PCM into a WAV file of unknown final length. It writes a
// header with zero sizes up front, appends PCM as it arrives, and patches the
// RIFF and data chunk sizes on Close. Calls can run for an hour; buffering a
// whole recording in memory is not an option.
//
// Not safe for concurrent use; the recording path owns it exclusively.
type WAVWriter struct {
	ws       io.WriteSeeker
	dataSize uint32
	closed   bool
}

// NewWAVWriter writes a provisional header to ws and returns a writer ready
// to accept PCM via Write.
func NewWAVWriter(ws io.WriteSeeker, sampleRate, channels int) (*WAVWriter, error) {
	if err := writeWAVHeader(ws, sampleRate, channels, 0); err != nil {
		return nil, fmt.Errorf("audio: wav header: %w", err)
	}
	return &WAVWriter{ws: ws}, nil
}

// Write appends raw 16-bit little-endian PCM to the data chunk.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("audio: wav writer is closed")
	}
	n, err := w.ws.Write(pcm)
	w.dataSize += uint32(n)
	if err != nil {
		return n, fmt.Errorf("audio: wav write: %w", err)
	}
	return n, nil
}

// Close patches the RIFF and data sizes in the header. It does not close the
// underlying WriteSeeker; the caller owns the file handle. Close is
// idempotent.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// RIFF chunk size at offset 4.
	if _, err := w.ws.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("audio: wav finalize: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, uint32(wavHeaderSize-8)+w.dataSize); err != nil {
		return fmt.Errorf("audio: wav finalize: %w", err)
	}

	// data chunk size at offset 40.
	if _, err := w.ws.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("audio: wav finalize: %w", err)
	}
	if err := binary.Write(w.ws, binary.LittleEndian, w.dataSize); err != nil {
		return fmt.Errorf("audio: wav finalize: %w", err)
	}

	_, err := w.ws.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("audio: wav finalize: %w", err)
	}
	return nil
}

// BytesWritten reports the number of PCM bytes written so far, excluding the
// header.
func (w *WAVWriter) BytesWritten() uint32 {
	return w.dataSize
}
