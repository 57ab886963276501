// Package snapshot ingests seismograph snapshot files: it relocates loose
// files into date shards, extracts the signal metadata embedded in the PNG
// text chunks, and keeps the metadata cache in sync with the directory tree.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/xtxerr/shakewatch/internal/errors"
	"github.com/xtxerr/shakewatch/internal/store"
)

// pngSignature is the fixed 8-byte PNG file header.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Upstream embeds the trigger readings as "STA=... LTA=... STA/LTA=...
// MaxCount=..." in the Description text chunk.
var (
	shortAvgRe = regexp.MustCompile(`STA=([0-9.]+)`)
	longAvgRe  = regexp.MustCompile(`LTA=([0-9.]+)`)
	ratioRe    = regexp.MustCompile(`STA/LTA=([0-9.]+)`)
	peakRe     = regexp.MustCompile(`MaxCount=([0-9.]+)`)
)

// maxChunkSize caps a single text chunk read so a corrupt length field
// cannot allocate unbounded memory.
const maxChunkSize = 1 << 20

// ExtractMetadata reads the embedded signal metadata from a PNG file.
//
// The readings live in the Description tEXt chunk; when that is absent the
// Comment chunk is retained as the raw text for audit. A file without any
// text chunk yields an empty Signal and a nil raw string, which is valid:
// snapshots without embedded metadata are still cached.
func ExtractMetadata(path string) (store.Signal, *string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.Signal{}, nil, fmt.Errorf("%s: %w", path, errors.ErrFileNotFound)
		}
		return store.Signal{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	texts, err := readTextChunks(f)
	if err != nil {
		return store.Signal{}, nil, fmt.Errorf("%s: %v: %w", path, err, errors.ErrInvalidMetadata)
	}

	description := texts["Description"]
	if description != "" {
		return parseSignalText(description), &description, nil
	}

	if comment, ok := texts["Comment"]; ok && comment != "" {
		return store.Signal{}, &comment, nil
	}

	return store.Signal{}, nil, nil
}

// parseSignalText pulls the individual readings out of the embedded text.
// Each reading is independently optional.
func parseSignalText(text string) store.Signal {
	var sig store.Signal
	sig.ShortAvg = matchFloat(shortAvgRe, text)
	sig.LongAvg = matchFloat(longAvgRe, text)
	sig.Ratio = matchFloat(ratioRe, text)
	sig.PeakAmplitude = matchFloat(peakRe, text)
	return sig
}

func matchFloat(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// readTextChunks walks the PNG chunk stream and collects tEXt entries
// keyed by keyword. Non-text chunks are skipped; CRCs are not verified
// because the readings are advisory metadata, not pixel data.
func readTextChunks(r io.Reader) (map[string]string, error) {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, fmt.Errorf("read signature: %w", err)
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, fmt.Errorf("not a PNG file")
	}

	texts := make(map[string]string)
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				// Truncated files keep whatever text was already read.
				return texts, nil
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}

		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])

		if chunkType == "IEND" {
			return texts, nil
		}

		if chunkType != "tEXt" || length > maxChunkSize {
			// Skip data plus the 4-byte CRC.
			if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
				return texts, nil
			}
			continue
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return texts, nil
		}
		if _, err := io.CopyN(io.Discard, r, 4); err != nil { // CRC
			addTextChunk(texts, data)
			return texts, nil
		}
		addTextChunk(texts, data)
	}
}

// addTextChunk splits a tEXt payload into keyword and text.
func addTextChunk(texts map[string]string, data []byte) {
	sep := bytes.IndexByte(data, 0)
	if sep <= 0 {
		return
	}
	texts[string(data[:sep])] = string(data[sep+1:])
}
