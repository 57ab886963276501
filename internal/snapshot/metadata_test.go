package snapshot

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/store"
)

// textChunk is a keyword/text pair written into a synthetic PNG.
type textChunk struct {
	keyword string
	text    string
}

// buildPNG assembles a minimal PNG byte stream: signature, the given tEXt
// chunks, and IEND. Chunk CRCs are zero; the reader does not verify them.
func buildPNG(chunks ...textChunk) []byte {
	out := append([]byte{}, pngSignature...)
	for _, c := range chunks {
		payload := append([]byte(c.keyword), 0)
		payload = append(payload, []byte(c.text)...)
		out = appendChunk(out, "tEXt", payload)
	}
	return appendChunk(out, "IEND", nil)
}

func appendChunk(out []byte, chunkType string, payload []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	out = append(out, length[:]...)
	out = append(out, chunkType...)
	out = append(out, payload...)
	return append(out, 0, 0, 0, 0) // CRC, unverified
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestExtractMetadata_Description(t *testing.T) {
	desc := "STA=1250.5 LTA=310.2 STA/LTA=4.03 MaxCount=412345.0"
	path := writeFile(t, t.TempDir(), "snap.png", buildPNG(textChunk{"Description", desc}))

	sig, raw, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if raw == nil || *raw != desc {
		t.Fatalf("raw = %v, want %q", raw, desc)
	}
	if sig.ShortAvg == nil || *sig.ShortAvg != 1250.5 {
		t.Errorf("ShortAvg = %v, want 1250.5", sig.ShortAvg)
	}
	if sig.LongAvg == nil || *sig.LongAvg != 310.2 {
		t.Errorf("LongAvg = %v, want 310.2", sig.LongAvg)
	}
	if sig.Ratio == nil || *sig.Ratio != 4.03 {
		t.Errorf("Ratio = %v, want 4.03", sig.Ratio)
	}
	if sig.PeakAmplitude == nil || *sig.PeakAmplitude != 412345.0 {
		t.Errorf("PeakAmplitude = %v, want 412345", sig.PeakAmplitude)
	}
}

func TestExtractMetadata_PartialReadings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snap.png",
		buildPNG(textChunk{"Description", "STA/LTA=2.5 something else"}))

	sig, _, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if sig.Ratio == nil || *sig.Ratio != 2.5 {
		t.Errorf("Ratio = %v, want 2.5", sig.Ratio)
	}
	// The readings are unanchored substring matches, so "LTA=" also hits
	// inside "STA/LTA=".
	if sig.LongAvg == nil || *sig.LongAvg != 2.5 {
		t.Errorf("LongAvg = %v, want 2.5", sig.LongAvg)
	}
	if sig.ShortAvg != nil || sig.PeakAmplitude != nil {
		t.Errorf("unexpected readings: %+v", sig)
	}
}

func TestExtractMetadata_CommentFallback(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snap.png",
		buildPNG(textChunk{"Comment", "manual capture"}))

	sig, raw, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if raw == nil || *raw != "manual capture" {
		t.Fatalf("raw = %v, want comment text", raw)
	}
	if sig.ShortAvg != nil || sig.Ratio != nil {
		t.Errorf("comment must not populate readings: %+v", sig)
	}
}

func TestExtractMetadata_NoTextChunks(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snap.png", buildPNG())

	sig, raw, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if raw != nil {
		t.Errorf("raw = %q, want nil", *raw)
	}
	if sig != (store.Signal{}) {
		t.Errorf("signal = %+v, want zero", sig)
	}
}

func TestExtractMetadata_NotPNG(t *testing.T) {
	path := writeFile(t, t.TempDir(), "snap.png", []byte("definitely not a png"))

	_, _, err := ExtractMetadata(path)
	if !errors.Is(err, errors.ErrInvalidMetadata) {
		t.Fatalf("err = %v, want ErrInvalidMetadata", err)
	}
}

func TestExtractMetadata_MissingFile(t *testing.T) {
	_, _, err := ExtractMetadata(filepath.Join(t.TempDir(), "gone.png"))
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestExtractMetadata_TruncatedKeepsEarlierText(t *testing.T) {
	full := buildPNG(textChunk{"Description", "STA=10.0"})
	// Cut inside the IEND header: the Description chunk is already complete.
	path := writeFile(t, t.TempDir(), "snap.png", full[:len(full)-6])

	sig, _, err := ExtractMetadata(path)
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if sig.ShortAvg == nil || *sig.ShortAvg != 10.0 {
		t.Errorf("ShortAvg = %v, want 10.0", sig.ShortAvg)
	}
}
