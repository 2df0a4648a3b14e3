package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/providers"
	"github.com/kmlawson/lmsp/sanitize"
)

// StreamToken represents a single fragment from the streaming response.
type StreamToken struct {
	// Text is the fragment as sent by the server. It is not sanitized.
	Text string

	// Index is the position of this fragment among the text fragments.
	Index int

	FinishReason string

	// Usage is set on the chunk that carries the server's token counts.
	Usage *providers.Usage
}

// TokenStream represents a stream of fragments from the server.
// It follows Go's io.ReadCloser pattern but with fragment granularity.
// A stream is finite and cannot be restarted.
type TokenStream interface {
	// Next returns the next fragment in the stream.
	// When the stream is finished, it returns io.EOF.
	Next(context.Context) (*StreamToken, error)

	// Close releases any resources associated with the stream.
	io.Closer
}

var doneMarker = []byte("[DONE]")

// SSEDecoder handles Server-Sent Events (SSE) streaming
type SSEDecoder struct {
	reader  *bufio.Scanner
	current Event
	err     error
}

type Event struct {
	Type string
	Data []byte
}

// NewSSEDecoder reads events from reader. Lines longer than maxLine bytes
// fail the decoder with PayloadTooLargeError.
func NewSSEDecoder(reader io.Reader, maxLine int) *SSEDecoder {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	return &SSEDecoder{reader: scanner}
}

// Next advances to the next event. An event is dispatched on an empty line
// or when the input ends with data pending.
func (d *SSEDecoder) Next() bool {
	if d.err != nil {
		return false
	}

	event := ""
	var data bytes.Buffer
	pending := false

	for d.reader.Scan() {
		line := d.reader.Bytes()

		// Dispatch event on empty line
		if len(line) == 0 {
			if !pending {
				continue
			}
			d.current = Event{Type: event, Data: bytes.TrimSuffix(data.Bytes(), []byte("\n"))}
			return true
		}

		// Split "event: value" into parts
		name, value, _ := bytes.Cut(line, []byte(":"))

		// Remove optional space after colon
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}

		switch string(name) {
		case "":
			continue // Skip comments
		case "event":
			event = string(value)
			pending = true
		case "data":
			data.Write(value)
			data.WriteByte('\n')
			pending = true
		}
	}

	if err := d.reader.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			err = errs.New(errs.ErrorTypePayloadTooLarge, "stream line too long", err)
		}
		d.err = err
		return false
	}
	if pending {
		d.current = Event{Type: event, Data: bytes.TrimSuffix(data.Bytes(), []byte("\n"))}
		return true
	}
	return false
}

func (d *SSEDecoder) Event() Event {
	return d.current
}

func (d *SSEDecoder) Err() error {
	return d.err
}

// boundedReader fails once more than max bytes have been read.
type boundedReader struct {
	r    io.Reader
	read int64
	max  int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.read > b.max {
		return 0, errs.Newf(errs.ErrorTypePayloadTooLarge, "stream exceeds %d bytes", b.max)
	}
	if rest := b.max + 1 - b.read; int64(len(p)) > rest {
		p = p[:rest]
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return n, errs.Newf(errs.ErrorTypePayloadTooLarge, "stream exceeds %d bytes", b.max)
	}
	return n, err
}

// sseStream is the TokenStream over a chat completion response body.
type sseStream struct {
	body     io.ReadCloser
	decoder  *SSEDecoder
	provider providers.Provider
	endpoint string
	started  time.Time
	index    int
	done     bool
}

func newSSEStream(body io.ReadCloser, provider providers.Provider, endpoint string, started time.Time) *sseStream {
	bounded := &boundedReader{r: body, max: sanitize.MaxResponseBytes}
	return &sseStream{
		body:     body,
		decoder:  NewSSEDecoder(bounded, sanitize.MaxResponseBytes),
		provider: provider,
		endpoint: endpoint,
		started:  started,
	}
}

// Started returns the time the request was dispatched.
func (s *sseStream) Started() time.Time {
	return s.started
}

func (s *sseStream) Next(ctx context.Context) (*StreamToken, error) {
	for {
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.decoder.Next() {
			s.done = true
			if err := s.decoder.Err(); err != nil {
				return nil, s.readError(err)
			}
			return nil, io.EOF
		}

		data := bytes.TrimSpace(s.decoder.Event().Data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, doneMarker) {
			s.done = true
			return nil, io.EOF
		}

		resp, err := s.provider.ParseStreamResponse(data)
		if err != nil {
			s.done = true
			return nil, malformed("invalid stream chunk", err)
		}
		if resp.Text == "" && resp.Usage == nil {
			continue
		}
		tok := &StreamToken{
			Text:         resp.Text,
			Index:        s.index,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
		}
		if resp.Text != "" {
			s.index++
		}
		return tok, nil
	}
}

func (s *sseStream) readError(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return malformed("stream rejected", err)
	}
	return transportError(err, s.endpoint)
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
