package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/time/rate"

	"github.com/kmlawson/lmsp/providers"
)

// Result is a finished completion with its statistics.
type Result struct {
	Text   string
	Tokens int
	// FromUsage is true when Tokens was reported by the server.
	FromUsage         bool
	FirstTokenLatency time.Duration
	Latency           time.Duration
}

// TokensPerSecond returns the generation rate, or 0 when latency was not
// measured.
func (r *Result) TokensPerSecond() float64 {
	if r.Latency <= 0 {
		return 0
	}
	return float64(r.Tokens) / r.Latency.Seconds()
}

// TokenCounter counts completion tokens when the server reports none.
type TokenCounter interface {
	// Count returns the token count of text, which arrived in chunks
	// fragments. chunks is 0 for non-streamed replies.
	Count(text string, chunks int) int
}

// ChunkCounter counts one token per streamed fragment. Non-streamed replies
// are counted by whitespace-separated words.
type ChunkCounter struct{}

func (ChunkCounter) Count(text string, chunks int) int {
	if chunks > 0 {
		return chunks
	}
	return len(strings.Fields(text))
}

// TiktokenCounter estimates tokens with a BPE encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// DefaultEncoding is the BPE encoding used by NewTiktokenCounter.
const DefaultEncoding = "cl100k_base"

// NewTiktokenCounter loads the cl100k_base encoding. The first call may
// download the encoding into the tiktoken cache.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", DefaultEncoding, err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

func (t *TiktokenCounter) Count(text string, _ int) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (c *Client) countTokens(text string, chunks int, usage *providers.Usage) (int, bool) {
	if c.preferUsage && usage != nil && usage.OutputTokens > 0 {
		return int(usage.OutputTokens), true
	}
	return c.counter.Count(text, chunks), false
}

// trimResult drops the trailing newlines models tend to end with.
func trimResult(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// Collect consumes stream to the end, calling onChunk with each text fragment
// in arrival order, and closes it. Latencies are measured from the moment the
// request was dispatched.
func (c *Client) Collect(ctx context.Context, stream TokenStream, onChunk func(string) error) (*Result, error) {
	defer stream.Close()

	started := time.Now()
	if s, ok := stream.(interface{ Started() time.Time }); ok {
		started = s.Started()
	}

	var (
		text   strings.Builder
		chunks int
		usage  *providers.Usage
		res    Result
	)
	progress := rate.Sometimes{Interval: time.Second}

	for {
		tok, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tok.Usage != nil {
			usage = tok.Usage
		}
		if tok.Text == "" {
			continue
		}
		if chunks == 0 {
			res.FirstTokenLatency = time.Since(started)
		}
		chunks++
		text.WriteString(tok.Text)
		if onChunk != nil {
			if err := onChunk(tok.Text); err != nil {
				return nil, err
			}
		}
		progress.Do(func() {
			c.logger.Debug("Streaming", "chunks", chunks, "bytes", text.Len(), "elapsed", time.Since(started))
		})
	}

	res.Latency = time.Since(started)
	res.Text = trimResult(text.String())
	res.Tokens, res.FromUsage = c.countTokens(res.Text, chunks, usage)
	c.logger.Debug("Stream finished", "chunks", chunks, "tokens", res.Tokens, "latency", res.Latency)
	return &res, nil
}
