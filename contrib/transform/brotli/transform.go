// Package brotli implements transform.Transform as a brotli
// compression/decompression step, ported from
// core/pkg/middleware/compress.go's brotli branch and adapted from an
// HTTP response-body compressor to a wrap/unwrap pipeline step that
// tags its own presence on the header bag so Unwrap knows whether to
// decompress.
package brotli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/madcok-co/conduit/core/pkg/message"
)

const bagKey = "content-encoding"

// Level selects the brotli compression/speed tradeoff.
type Level int

const (
	BestSpeed       Level = Level(brotli.BestSpeed)
	BestCompression Level = Level(brotli.BestCompression)
	DefaultLevel    Level = Level(brotli.DefaultCompression)
)

// Transform compresses on Wrap and decompresses on Unwrap. MinLength
// bodies smaller than this are passed through uncompressed, matching
// the teacher's CompressConfig.MinLength default of not compressing
// small bodies.
type Transform struct {
	level     Level
	minLength int
}

// New returns a Transform at the given level; bodies under minLength
// bytes are left uncompressed.
func New(level Level, minLength int) *Transform {
	return &Transform{level: level, minLength: minLength}
}

func (t *Transform) Name() string { return "brotli" }

func (t *Transform) Wrap(h *message.Header, body []byte) ([]byte, error) {
	if len(body) < t.minLength {
		return body, nil
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, int(t.level))
	if _, err := w.Write(body); err != nil {
		w.Close()
		return nil, fmt.Errorf("brotli transform: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli transform: close writer: %w", err)
	}

	h.SetBagValue(bagKey, "br")
	return buf.Bytes(), nil
}

func (t *Transform) Unwrap(h *message.Header, body []byte) ([]byte, error) {
	encoding, _ := h.BagValue(bagKey)
	if encoding != "br" {
		return body, nil
	}

	r := brotli.NewReader(bytes.NewReader(body))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli transform: decompress: %w", err)
	}
	return out, nil
}
