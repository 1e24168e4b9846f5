package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Terminator is the literal final frame of every stream, emitted exactly
// once, even after an error frame.
const Terminator = "[DONE]"

// Frame is one unit of a streamed response: either a content fragment or
// an in-band error. Exactly one field is set.
type Frame struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// Writer emits server-sent event frames in the `data: <JSON>\n\n` format.
// It flushes after every frame so consumers see fragments as they arrive.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps an http.ResponseWriter (or any io.Writer) for frame
// output. It sets the event-stream headers when given a ResponseWriter.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")
		if f, ok := w.(http.Flusher); ok {
			sw.flusher = f
		}
	}
	return sw
}

func (w *Writer) Text(text string) error {
	return w.frame(Frame{Text: text})
}

func (w *Writer) Err(message string) error {
	return w.frame(Frame{Error: message})
}

// Done writes the stream terminator.
func (w *Writer) Done() error {
	return w.raw(Terminator)
}

func (w *Writer) frame(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.raw(string(payload))
}

func (w *Writer) raw(data string) error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Decode reads frames from r until the terminator or EOF, invoking fn for
// each frame in order. Lines that are not data lines, and data lines whose
// JSON does not parse, are skipped. The terminator itself is not delivered.
func Decode(r io.Reader, fn func(Frame) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == Terminator {
			return nil
		}

		var f Frame
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Collect decodes a full stream and returns the concatenated text along
// with the first in-band error, if any.
func Collect(r io.Reader) (text string, streamErr string, err error) {
	var b strings.Builder
	decodeErr := Decode(r, func(f Frame) error {
		if f.Error != "" && streamErr == "" {
			streamErr = f.Error
		}
		b.WriteString(f.Text)
		return nil
	})
	return b.String(), streamErr, decodeErr
}
