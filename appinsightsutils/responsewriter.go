package appinsightsutils

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// ResponseWriterWithStatusCode is a wrapper around http.ResponseWriter that captures the status code.
// It passes Flush and Hijack through so that streamed and upgraded (WebSocket) responses still work.
type ResponseWriterWithStatusCode struct {
	http.ResponseWriter
	statusCode int
}

func NewResponseWriterWithStatusCode(w http.ResponseWriter) *ResponseWriterWithStatusCode {
	return &ResponseWriterWithStatusCode{w, http.StatusOK}
}
func (w *ResponseWriterWithStatusCode) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
func (w *ResponseWriterWithStatusCode) StatusCode() int {
	return w.statusCode
}

func (w *ResponseWriterWithStatusCode) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *ResponseWriterWithStatusCode) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", w.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.statusCode = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *ResponseWriterWithStatusCode) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
