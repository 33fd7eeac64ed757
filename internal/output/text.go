package output

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/mrviduus/ReplyMate-sub000/internal/engine"
)

// TextWriter renders results for a human reading a terminal. Generation
// results get a reply line plus a short provenance footer; anything else
// falls back to fmt.
type TextWriter struct {
	w *bufio.Writer
}

// NewTextWriter creates a text writer.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: bufio.NewWriter(w)}
}

// Write renders a single result.
func (w *TextWriter) Write(data any) error {
	switch v := data.(type) {
	case *engine.Result:
		return w.writeResult(v)
	case engine.Result:
		return w.writeResult(&v)
	default:
		_, err := fmt.Fprintln(w.w, v)
		return err
	}
}

func (w *TextWriter) writeResult(r *engine.Result) error {
	if _, err := fmt.Fprintln(w.w, r.Text); err != nil {
		return err
	}

	footer := fmt.Sprintf("[%s/%s · %s · score %d",
		r.Provider, r.Model, r.Latency.Round(time.Millisecond), r.Quality.Score)
	if r.Retried {
		footer += " · retried"
	}
	footer += "]"
	_, err := fmt.Fprintln(w.w, footer)
	return err
}

// Flush flushes the buffer.
func (w *TextWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *TextWriter) Close() error {
	return w.Flush()
}
