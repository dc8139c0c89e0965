package pipeline

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeWAV(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestPrependSilenceSplicesBeforeData(t *testing.T) {
	body := []byte{10, 20, 30, 40}
	path := writeWAV(t, minimalWAV(8000, body))

	if err := prependSilence(path, 0.5); err != nil {
		t.Fatalf("prependSilence: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	// 0.5s of 8kHz mono 8-bit audio is 4000 zero bytes.
	wantLen := len(minimalWAV(8000, body)) + 4000
	if len(out) != wantLen {
		t.Fatalf("output length = %d, want %d", len(out), wantLen)
	}

	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(len(out)-8) {
		t.Fatalf("RIFF size = %d, want %d", got, len(out)-8)
	}

	// data chunk follows the 16-byte fmt chunk.
	dataOffset := 12 + 8 + 16
	if string(out[dataOffset:dataOffset+4]) != "data" {
		t.Fatalf("expected data chunk at offset %d", dataOffset)
	}
	if got := binary.LittleEndian.Uint32(out[dataOffset+4 : dataOffset+8]); got != uint32(len(body)+4000) {
		t.Fatalf("data size = %d, want %d", got, len(body)+4000)
	}

	dataBody := out[dataOffset+8:]
	for i := 0; i < 4000; i++ {
		if dataBody[i] != 0 {
			t.Fatalf("silence byte %d = %d, want 0", i, dataBody[i])
		}
	}
	for i, want := range body {
		if dataBody[4000+i] != want {
			t.Fatalf("sample %d = %d, want %d", i, dataBody[4000+i], want)
		}
	}
}

func TestPrependSilenceRejectsNonWAV(t *testing.T) {
	path := writeWAV(t, []byte("definitely not a wav file"))
	if err := prependSilence(path, 1.5); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestPrependSilenceRejectsTruncatedHeader(t *testing.T) {
	path := writeWAV(t, []byte("RIFF"))
	if err := prependSilence(path, 1.5); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestPrependSilenceRejectsMissingDataChunk(t *testing.T) {
	wav := minimalWAV(8000, nil)
	// Strip the data chunk entirely.
	wav = wav[:12+8+16]
	path := writeWAV(t, wav)
	if err := prependSilence(path, 1.5); err == nil {
		t.Fatal("expected error for missing data chunk")
	}
}
