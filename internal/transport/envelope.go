// Package transport holds the HTTP-level reply envelope owned by a bid
// response. It carries status, headers and body independently of whichever
// protocol payload ends up serialized into the body.
package transport

import (
	"net/http"
	"strconv"
)

// ResponseBuilder accumulates an outbound HTTP reply.
type ResponseBuilder struct {
	status int
	header http.Header
	body   []byte
}

// NewResponseBuilder returns an envelope with status 200 and no headers.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{
		status: http.StatusOK,
		header: make(http.Header),
	}
}

// Status returns the HTTP status code.
func (b *ResponseBuilder) Status() int { return b.status }

// SetStatus sets the HTTP status code.
func (b *ResponseBuilder) SetStatus(code int) *ResponseBuilder {
	b.status = code
	return b
}

// Header returns the live header map.
func (b *ResponseBuilder) Header() http.Header { return b.header }

// SetHeader replaces a header value.
func (b *ResponseBuilder) SetHeader(key, value string) *ResponseBuilder {
	b.header.Set(key, value)
	return b
}

// Body returns the current body.
func (b *ResponseBuilder) Body() []byte { return b.body }

// SetBody replaces the body.
func (b *ResponseBuilder) SetBody(body []byte) *ResponseBuilder {
	b.body = body
	return b
}

// Clone returns a deep copy of the envelope.
func (b *ResponseBuilder) Clone() *ResponseBuilder {
	c := &ResponseBuilder{
		status: b.status,
		header: b.header.Clone(),
	}
	if c.header == nil {
		c.header = make(http.Header)
	}
	if b.body != nil {
		c.body = append([]byte(nil), b.body...)
	}
	return c
}

// Send writes the envelope to w.
func (b *ResponseBuilder) Send(w http.ResponseWriter) error {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = append([]string(nil), v...)
	}
	if len(b.body) > 0 && b.status != http.StatusNoContent {
		dst.Set("Content-Length", strconv.Itoa(len(b.body)))
	}
	w.WriteHeader(b.status)
	if len(b.body) == 0 || b.status == http.StatusNoContent {
		return nil
	}
	_, err := w.Write(b.body)
	return err
}
