package render

import (
	"io"
	"strings"

	"github.com/kmlawson/lmsp/sanitize"
)

// StreamWriter renders a reply as its fragments arrive. Plain fragments are
// written at once, decorated output line by line, and markdown on Close.
// Trailing newlines are held back so the reply always ends with exactly one.
type StreamWriter struct {
	r       *Renderer
	format  string
	buf     strings.Builder
	pending int
	wrote   bool
	closed  bool
}

// StreamWriter returns a writer for one reply.
func (r *Renderer) StreamWriter() *StreamWriter {
	return &StreamWriter{r: r, format: r.Format()}
}

// Write takes the next fragment. Its signature matches the callback of
// llm.Client.Collect.
func (w *StreamWriter) Write(fragment string) error {
	fragment = sanitize.Terminal(fragment)
	switch w.format {
	case FormatMarkdown:
		w.buf.WriteString(fragment)
		return nil
	case FormatDecorated:
		w.buf.WriteString(fragment)
		return w.flushLines()
	default:
		return w.emitText(fragment)
	}
}

// emitText writes text, deferring its trailing newlines.
func (w *StreamWriter) emitText(text string) error {
	content := strings.TrimRight(text, "\n")
	trailing := len(text) - len(content)
	if content == "" {
		w.pending += trailing
		return nil
	}
	if err := w.emit(content); err != nil {
		return err
	}
	w.pending = trailing
	return nil
}

func (w *StreamWriter) emit(s string) error {
	if w.pending > 0 {
		if _, err := io.WriteString(w.r.out, strings.Repeat("\n", w.pending)); err != nil {
			return err
		}
		w.pending = 0
	}
	_, err := io.WriteString(w.r.out, s)
	if err == nil {
		w.wrote = true
	}
	return err
}

// flushLines decorates and writes every complete buffered line.
func (w *StreamWriter) flushLines() error {
	data := w.buf.String()
	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		return nil
	}
	w.buf.Reset()
	w.buf.WriteString(data[idx+1:])

	for _, line := range strings.Split(data[:idx], "\n") {
		if line == "" {
			w.pending++
			continue
		}
		if err := w.emit(w.r.styles.decorateLine(line)); err != nil {
			return err
		}
		w.pending = 1
	}
	return nil
}

// Close writes whatever is buffered followed by a single newline.
func (w *StreamWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	rest := w.buf.String()
	w.buf.Reset()
	switch w.format {
	case FormatMarkdown:
		if strings.TrimSpace(rest) != "" {
			out, err := w.r.markdown(rest)
			if err != nil {
				return err
			}
			if err := w.emit(out); err != nil {
				return err
			}
		}
	case FormatDecorated:
		if rest != "" {
			if err := w.emit(w.r.styles.decorateLine(rest)); err != nil {
				return err
			}
		}
	}

	if !w.wrote {
		return nil
	}
	_, err := io.WriteString(w.r.out, "\n")
	return err
}
