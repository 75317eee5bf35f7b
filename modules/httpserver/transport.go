package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/GoCodeAlone/webmod"
)

// requestTransport exposes an *http.Request to the pipeline.
type requestTransport struct {
	r *http.Request
}

func (t requestTransport) URI() string {
	if t.r.RequestURI != "" {
		return t.r.RequestURI
	}
	return t.r.URL.RequestURI()
}

func (t requestTransport) Method() string { return t.r.Method }

func (t requestTransport) HTTPVersion() string { return t.r.Proto }

// Headers returns every header line, including Host which net/http keeps
// outside r.Header.
func (t requestTransport) Headers() []webmod.HeaderField {
	fields := make([]webmod.HeaderField, 0, len(t.r.Header)+1)
	if t.r.Host != "" {
		fields = append(fields, webmod.HeaderField{Name: "Host", Value: t.r.Host})
	}
	for name, values := range t.r.Header {
		for _, v := range values {
			fields = append(fields, webmod.HeaderField{Name: name, Value: v})
		}
	}
	return fields
}

func (t requestTransport) Body(_ context.Context, limit int64) ([]byte, error) {
	if t.r.Body == nil || t.r.Body == http.NoBody {
		return nil, nil
	}
	if limit > 0 && t.r.ContentLength > limit {
		return nil, fmt.Errorf("%w: content-length %d", webmod.ErrBodyTooLarge, t.r.ContentLength)
	}
	reader := io.Reader(t.r.Body)
	if limit > 0 {
		reader = io.LimitReader(t.r.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, webmod.ErrBodyTooLarge
	}
	return data, nil
}

// flushWriter writes stream frames straight to the client.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f flushWriter) WriteFrame(frame []byte) error {
	if _, err := f.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	f.flusher.Flush()
	return nil
}
