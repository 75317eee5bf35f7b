package webmod

import (
	"context"
	"encoding/json"
	"net/http"
)

// StreamFunc produces the body of a streamed response. ctx is cancelled when
// the connection closes.
type StreamFunc func(ctx context.Context, s *Stream) error

// Response is built by middlewares and handlers. Its payload is either an
// immediate body or a stream producer, never both.
type Response struct {
	Status int
	Header http.Header

	body   []byte
	stream StreamFunc
	next   *continuation
}

type continuation struct {
	req *Request
	res *Response
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{Status: http.StatusOK, Header: make(http.Header)}
}

// SetStatus sets the status code.
func (r *Response) SetStatus(code int) *Response {
	r.Status = code
	return r
}

// SetHeader replaces the values of a header.
func (r *Response) SetHeader(name, value string) *Response {
	r.ensureHeader().Set(name, value)
	return r
}

// AddHeader appends a value to a header.
func (r *Response) AddHeader(name, value string) *Response {
	r.ensureHeader().Add(name, value)
	return r
}

// SetBody sets an immediate payload, replacing any stream.
func (r *Response) SetBody(body []byte) *Response {
	r.body = body
	r.stream = nil
	return r
}

// Text sets a plain text payload.
func (r *Response) Text(status int, text string) *Response {
	r.Status = status
	r.SetHeader("Content-Type", "text/plain; charset=utf-8")
	return r.SetBody([]byte(text))
}

// JSON encodes v as the payload. An unencodable value yields a 500.
func (r *Response) JSON(status int, v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		return r.Text(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
	r.Status = status
	r.SetHeader("Content-Type", "application/json")
	return r.SetBody(data)
}

// Redirect points the client at location.
func (r *Response) Redirect(location string, status int) *Response {
	r.Status = status
	r.SetHeader("Location", location)
	return r.SetBody(nil)
}

// SetCookie adds a Set-Cookie header. Invalid cookies are dropped.
func (r *Response) SetCookie(c *http.Cookie) *Response {
	if v := c.String(); v != "" {
		r.AddHeader("Set-Cookie", v)
	}
	return r
}

// Stream makes the response a streamed one produced by fn, replacing any
// immediate body.
func (r *Response) Stream(fn StreamFunc) *Response {
	r.stream = fn
	r.body = nil
	return r
}

// Body returns the immediate payload.
func (r *Response) Body() []byte {
	return r.body
}

// StreamFunc returns the stream producer, or nil for immediate responses.
func (r *Response) StreamFunc() StreamFunc {
	return r.stream
}

// IsStream reports whether the payload is streamed.
func (r *Response) IsStream() bool {
	return r.stream != nil
}

func (r *Response) ensureHeader() http.Header {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	return r.Header
}

func fixedResponse(status int) *Response {
	return NewResponse().Text(status, http.StatusText(status))
}

// NotFound is the response for requests no route matches.
func NotFound() *Response { return fixedResponse(http.StatusNotFound) }

// InternalServerError is the response for requests whose handling panicked.
func InternalServerError() *Response { return fixedResponse(http.StatusInternalServerError) }

// RequestTimeout is the response for requests exceeding the configured timeout.
func RequestTimeout() *Response { return fixedResponse(http.StatusRequestTimeout) }

// ServiceUnavailable is the response while the server shuts down.
func ServiceUnavailable() *Response { return fixedResponse(http.StatusServiceUnavailable) }

// BadRequest is the response for unreadable or malformed bodies.
func BadRequest() *Response { return fixedResponse(http.StatusBadRequest) }

// PayloadTooLarge is the response for bodies over the size limit.
func PayloadTooLarge() *Response { return fixedResponse(http.StatusRequestEntityTooLarge) }

// URITooLong is the response for request targets over the length limit.
func URITooLong() *Response { return fixedResponse(http.StatusRequestURITooLong) }

// HeaderFieldsTooLarge is the response for header sets over the byte or count limit.
func HeaderFieldsTooLarge() *Response { return fixedResponse(http.StatusRequestHeaderFieldsTooLarge) }
