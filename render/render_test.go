package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmlawson/lmsp/llm"
)

func newTestRenderer(format string, profile termenv.Profile, opts ...Option) (*Renderer, *bytes.Buffer) {
	var out bytes.Buffer
	opts = append([]Option{WithProfile(profile), WithDarkBackground(true)}, opts...)
	return New(&out, format, opts...), &out
}

func TestFormatStats(t *testing.T) {
	assert.Equal(t, "120 tokens, 4.00s, 30.0 tok/s", FormatStats(120, 4*time.Second))
	assert.Equal(t, "7 tokens, 0.25s, 28.0 tok/s", FormatStats(7, 250*time.Millisecond))
	assert.Equal(t, "12 tokens", FormatStats(12, 0))
}

func TestStatsTrailer(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.ANSI)
	require.NoError(t, r.Stats(&llm.Result{Tokens: 120, Latency: 4 * time.Second}))
	assert.Equal(t, "120 tokens, 4.00s, 30.0 tok/s\n", out.String())
}

func TestStatsWriterAndDim(t *testing.T) {
	var stats bytes.Buffer
	r, out := newTestRenderer(FormatDecorated, termenv.ANSI, WithStatsWriter(&stats))

	require.NoError(t, r.Stats(&llm.Result{Tokens: 3, Latency: time.Second}))
	assert.Empty(t, out.String())
	assert.Contains(t, stats.String(), "3 tokens, 1.00s, 3.0 tok/s")
	assert.Contains(t, stats.String(), "\x1b[", "decorated trailer is dimmed")
}

func TestPlainStreamingWritesImmediately(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.ANSI)
	w := r.StreamWriter()

	require.NoError(t, w.Write("Hel"))
	assert.Equal(t, "Hel", out.String())
	require.NoError(t, w.Write("lo\n"))
	assert.Equal(t, "Hello", out.String(), "trailing newline is held back")
	require.NoError(t, w.Write("world\n\n"))
	assert.Equal(t, "Hello\nworld", out.String())
	require.NoError(t, w.Close())
	assert.Equal(t, "Hello\nworld\n", out.String())
}

func TestPlainNeverEmitsEscapes(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.TrueColor)

	require.NoError(t, r.Text("\x1b[2J\x1b]0;title\x07**bold**\r\n\x1b[31mred\x1b[0m\x00"))
	assert.Equal(t, "**bold**\nred\n", out.String())
}

func TestDecoratedLineBuffering(t *testing.T) {
	r, out := newTestRenderer(FormatDecorated, termenv.Ascii)
	w := r.StreamWriter()

	require.NoError(t, w.Write("# Ti"))
	assert.Empty(t, out.String(), "partial lines are buffered")
	require.NoError(t, w.Write("tle\n- one\n* two"))
	assert.Equal(t, "Title\n• one", out.String())
	require.NoError(t, w.Close())
	assert.Equal(t, "Title\n• one\n• two\n", out.String())
}

func TestDecoratedInline(t *testing.T) {
	r, _ := newTestRenderer(FormatDecorated, termenv.Ascii)
	s := r.styles

	testCases := []struct {
		in   string
		want string
	}{
		{"**bold** and __also__", "bold and also"},
		{"*italic* and _this_", "italic and this"},
		{"use `go test` now", "use go test now"},
		{"snake_case_name stays", "snake_case_name stays"},
		{"2 * 3 * 4", "2 * 3 * 4"},
		{"## **Heading**", "Heading"},
		{"  - nested", "  • nested"},
		{"---", "---"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, s.decorateLine(tc.in))
		})
	}
}

func TestDecoratedStyles(t *testing.T) {
	r, out := newTestRenderer(FormatDecorated, termenv.ANSI)

	require.NoError(t, r.Text("**bold**\n\x1b[31mred"))
	got := out.String()
	assert.Contains(t, got, "\x1b[1mbold")
	assert.NotContains(t, got, "\x1b[31m", "escape sequences from the model never reach the terminal")
	assert.Contains(t, got, "red")
}

func TestMarkdownBuffersUntilClose(t *testing.T) {
	r, out := newTestRenderer(FormatMarkdown, termenv.Ascii, WithWidth(60))
	w := r.StreamWriter()

	require.NoError(t, w.Write("# Heading\n\nSome "))
	require.NoError(t, w.Write("**text** here.\n"))
	assert.Empty(t, out.String())

	require.NoError(t, w.Close())
	got := out.String()
	assert.Contains(t, got, "Heading")
	assert.Contains(t, got, "text")
	assert.True(t, strings.HasSuffix(got, "\n"))
	assert.NotContains(t, got, "\x1b")
}

func TestEmptyReplyWritesNothing(t *testing.T) {
	r, out := newTestRenderer(FormatDecorated, termenv.Ascii)
	require.NoError(t, r.Text(""))
	assert.Empty(t, out.String())
}

func TestModels(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.Ascii)

	require.NoError(t, r.Models([]llm.ModelDescriptor{
		{ID: "modelA", Type: "llm", Loaded: true},
		{ID: "evil\x1b[2J", Loaded: true},
	}))
	assert.Equal(t, "Loaded models:\n  - modelA (llm)\n  - evil\n", out.String())

	out.Reset()
	require.NoError(t, r.Models(nil))
	assert.Equal(t, "No models loaded.\n", out.String())
}

func TestAvailable(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.Ascii)

	require.NoError(t, r.Available([]string{"qwen/qwen2.5-7b-instruct"}))
	assert.Equal(t, "Available models:\n  - qwen/qwen2.5-7b-instruct\n", out.String())
}

func TestServerStatus(t *testing.T) {
	r, out := newTestRenderer(FormatPlain, termenv.Ascii)

	require.NoError(t, r.ServerStatus(llm.ServerStatus{Running: true, Port: 1234}))
	assert.Equal(t, "● LM Studio server is running on port 1234\n", out.String())

	out.Reset()
	require.NoError(t, r.ServerStatus(llm.ServerStatus{Port: 1234, Detail: "nothing is listening"}))
	assert.Equal(t, "● LM Studio server is not running on port 1234 (nothing is listening)\n", out.String())
}

func TestUnknownFormatIsPlain(t *testing.T) {
	r, out := newTestRenderer("html", termenv.ANSI)
	assert.Equal(t, FormatPlain, r.Format())

	require.NoError(t, r.Text("**x**"))
	assert.Equal(t, "**x**\n", out.String())
}
