// Package deferred holds back a handler's response until the surrounding
// middleware decides it is complete, so headers can still be added after the
// handler returns.
package deferred

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"net/http"
)

// ErrCommitted is returned when a header is set after the response reached
// the client.
var ErrCommitted = errors.New("deferred: response already committed")

// DefaultMaxBuffer is the body size NewWriter holds back before it commits
// on its own.
const DefaultMaxBuffer = 1 << 20

// Writer buffers the status code and body written by a handler. Headers go
// straight to the wrapped writer's header map, which stays mutable until
// Commit. A body growing past the buffer limit commits early, sealing the
// headers just like Flush. Writer is not safe for concurrent use, like any
// ResponseWriter.
type Writer struct {
	rw          http.ResponseWriter
	buf         bytes.Buffer
	limit       int
	status      int
	wroteHeader bool
	committed   bool
}

// NewWriter wraps rw, buffering up to DefaultMaxBuffer body bytes.
func NewWriter(rw http.ResponseWriter) *Writer {
	return NewWriterSize(rw, DefaultMaxBuffer)
}

// NewWriterSize wraps rw, buffering up to limit body bytes. A limit of zero
// or less means DefaultMaxBuffer.
func NewWriterSize(rw http.ResponseWriter, limit int) *Writer {
	if limit <= 0 {
		limit = DefaultMaxBuffer
	}
	return &Writer{rw: rw, limit: limit}
}

// Header returns the wrapped writer's header map.
func (w *Writer) Header() http.Header {
	return w.rw.Header()
}

// WriteHeader records the status code. Informational codes other than 101
// are forwarded immediately since they do not finish the header block.
func (w *Writer) WriteHeader(code int) {
	if w.committed {
		w.rw.WriteHeader(code)
		return
	}
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		w.rw.WriteHeader(code)
		return
	}
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
}

// Write buffers b until Commit. If b would take the buffer past its limit,
// the response is committed first and b is written through.
func (w *Writer) Write(b []byte) (int, error) {
	if w.committed {
		return w.rw.Write(b)
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.buf.Len()+len(b) > w.limit {
		if err := w.Commit(); err != nil {
			return 0, err
		}
		return w.rw.Write(b)
	}
	return w.buf.Write(b)
}

// SetHeader sets a response header, failing once the response is committed.
func (w *Writer) SetHeader(key, value string) error {
	if w.committed {
		return ErrCommitted
	}
	w.rw.Header().Set(key, value)
	return nil
}

// Status returns the buffered status code, or 0 if none was written.
func (w *Writer) Status() int {
	return w.status
}

// Buffered returns the number of body bytes waiting for Commit.
func (w *Writer) Buffered() int {
	return w.buf.Len()
}

// Committed reports whether the response has been passed on.
func (w *Writer) Committed() bool {
	return w.committed
}

// Reset drops the buffered status and body. It has no effect after Commit.
func (w *Writer) Reset() {
	if w.committed {
		return
	}
	w.buf.Reset()
	w.status = 0
	w.wroteHeader = false
}

// Commit sends the buffered status and body to the wrapped writer. Later
// writes go straight through. Calling Commit again is a no-op.
func (w *Writer) Commit() error {
	if w.committed {
		return nil
	}
	w.committed = true
	if w.wroteHeader {
		w.rw.WriteHeader(w.status)
	}
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.rw.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

// Flush commits the response and flushes the wrapped writer. Streaming
// handlers therefore seal the headers at their first flush.
func (w *Writer) Flush() {
	_ = w.Commit()
	_ = http.NewResponseController(w.rw).Flush()
}

// Hijack commits whatever is buffered and hands over the connection.
func (w *Writer) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if err := w.Commit(); err != nil {
		return nil, nil, err
	}
	return http.NewResponseController(w.rw).Hijack()
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *Writer) Unwrap() http.ResponseWriter {
	return w.rw
}
