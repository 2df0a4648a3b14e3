// Package render prints completions, statistics and listings. Every piece of
// server-supplied text is passed through sanitize.Terminal before it is
// styled or written.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"

	"github.com/kmlawson/lmsp/llm"
	"github.com/kmlawson/lmsp/sanitize"
)

// Output formats.
const (
	FormatPlain     = "plain"
	FormatDecorated = "decorated"
	FormatMarkdown  = "markdown"
)

// DefaultWidth is used for markdown wrapping when the terminal width is
// unknown.
const DefaultWidth = 80

// Renderer writes to an output and, for statistics, an optional separate
// writer.
type Renderer struct {
	out      io.Writer
	statsOut io.Writer
	format   string
	width    int
	profile  *termenv.Profile
	dark     *bool

	styles      styles
	statsStyles styles
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithProfile forces the color profile instead of detecting it from the
// writer. termenv.Ascii disables all styling.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) {
		r.profile = &p
	}
}

// WithDarkBackground skips background detection.
func WithDarkBackground(dark bool) Option {
	return func(r *Renderer) {
		r.dark = &dark
	}
}

// WithWidth sets the wrap width for the markdown format.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithStatsWriter sends the statistics trailer to w instead of the output.
func WithStatsWriter(w io.Writer) Option {
	return func(r *Renderer) {
		r.statsOut = w
	}
}

// New creates a renderer for format. Unknown formats render as plain.
func New(out io.Writer, format string, opts ...Option) *Renderer {
	r := &Renderer{out: out, format: format, width: DefaultWidth}
	for _, opt := range opts {
		opt(r)
	}
	if r.statsOut == nil {
		r.statsOut = out
	}
	r.styles = newStyles(newLipglossRenderer(r.out, r.profile, r.dark))
	r.statsStyles = newStyles(newLipglossRenderer(r.statsOut, r.profile, r.dark))
	return r
}

// Format returns the effective output format.
func (r *Renderer) Format() string {
	switch r.format {
	case FormatDecorated, FormatMarkdown:
		return r.format
	default:
		return FormatPlain
	}
}

// Text renders a complete reply.
func (r *Renderer) Text(text string) error {
	w := r.StreamWriter()
	if err := w.Write(text); err != nil {
		return err
	}
	return w.Close()
}

func (r *Renderer) markdown(text string) (string, error) {
	style := glamourstyles.DarkStyleConfig
	if r.dark != nil && !*r.dark {
		style = glamourstyles.LightStyleConfig
	}
	profile := termenv.ANSI256
	if r.profile != nil {
		profile = *r.profile
	}
	if profile == termenv.Ascii {
		style = glamourstyles.NoTTYStyleConfig
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := tr.Render(text)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// FormatStats formats the statistics trailer. Without a measured latency
// only the token count is shown.
func FormatStats(tokens int, latency time.Duration) string {
	if latency <= 0 {
		return fmt.Sprintf("%d tokens", tokens)
	}
	secs := latency.Seconds()
	return fmt.Sprintf("%d tokens, %.2fs, %.1f tok/s", tokens, secs, float64(tokens)/secs)
}

// Stats writes the statistics trailer for res.
func (r *Renderer) Stats(res *llm.Result) error {
	line := FormatStats(res.Tokens, res.Latency)
	if r.Format() != FormatPlain {
		line = r.statsStyles.dim.Render(line)
	}
	_, err := fmt.Fprintln(r.statsOut, line)
	return err
}

// Models lists loaded models.
func (r *Renderer) Models(models []llm.ModelDescriptor) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(r.out, "No models loaded.")
		return err
	}
	lines := []string{r.styles.bold.Render("Loaded models:")}
	for _, m := range models {
		line := "  - " + sanitize.Terminal(m.ID)
		if m.Type != "" {
			line += " " + r.styles.dim.Render("("+sanitize.Terminal(m.Type)+")")
		}
		lines = append(lines, line)
	}
	_, err := fmt.Fprintln(r.out, strings.Join(lines, "\n"))
	return err
}

// Available lists downloaded models.
func (r *Renderer) Available(models []string) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(r.out, "No downloaded models found.")
		return err
	}
	lines := []string{r.styles.bold.Render("Available models:")}
	for _, m := range models {
		lines = append(lines, "  - "+sanitize.Terminal(m))
	}
	_, err := fmt.Fprintln(r.out, strings.Join(lines, "\n"))
	return err
}

// ServerStatus reports the result of a server status check.
func (r *Renderer) ServerStatus(status llm.ServerStatus) error {
	var line string
	if status.Running {
		line = r.styles.ok.Render("●") + fmt.Sprintf(" LM Studio server is running on port %d", status.Port)
	} else {
		line = r.styles.err.Render("●") + fmt.Sprintf(" LM Studio server is not running on port %d", status.Port)
		if status.Detail != "" {
			line += " " + r.styles.dim.Render("("+sanitize.Terminal(status.Detail)+")")
		}
	}
	_, err := fmt.Fprintln(r.out, line)
	return err
}
