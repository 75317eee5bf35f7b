package webmod

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"mime"
	"strings"
)

// Compressor encodes response bodies.
type Compressor interface {
	// Encoding is the Content-Encoding token, e.g. "gzip".
	Encoding() string
	Compress(data []byte) ([]byte, error)
}

// GzipCompressor compresses with gzip at the given level.
type GzipCompressor struct {
	Level int
}

func (GzipCompressor) Encoding() string { return "gzip" }

func (g GzipCompressor) Compress(data []byte) ([]byte, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// compressible reports whether res qualifies for compression under cfg for
// a client sending acceptEncoding.
func compressible(cfg CompressionConfig, res *Response, encoding, acceptEncoding string) bool {
	if !cfg.Enabled || res.IsStream() {
		return false
	}
	if len(res.body) < cfg.MinSize || len(res.body) == 0 {
		return false
	}
	if res.Header.Get("Content-Encoding") != "" {
		return false
	}
	if acceptEncoding != "" && !acceptsEncoding(acceptEncoding, encoding) {
		return false
	}
	return contentTypeAllowed(res.Header.Get("Content-Type"), cfg.ContentTypes)
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), mediaType) {
			return true
		}
	}
	return false
}

// acceptsEncoding checks an Accept-Encoding list for encoding or "*" with a
// non-zero quality.
func acceptsEncoding(header, encoding string) bool {
	for _, item := range strings.Split(header, ",") {
		token, params, _ := strings.Cut(strings.TrimSpace(item), ";")
		token = strings.TrimSpace(token)
		if !strings.EqualFold(token, encoding) && token != "*" {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		if q == "q=0" || q == "q=0.0" || q == "q=0.00" || q == "q=0.000" {
			return false
		}
		return true
	}
	return false
}
