package render

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette for decorated output.
var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}
	colorCode   = lipgloss.AdaptiveColor{Light: "#8250df", Dark: "#d2a8ff"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#656d76", Dark: "#8b949e"}
	colorError  = lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#ff7b72"}
)

// styles are bound to one lipgloss renderer so the color profile follows
// the writer they print to.
type styles struct {
	heading lipgloss.Style
	bold    lipgloss.Style
	italic  lipgloss.Style
	code    lipgloss.Style
	bullet  lipgloss.Style
	dim     lipgloss.Style
	err     lipgloss.Style
	ok      lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(colorAccent),
		bold:    r.NewStyle().Bold(true),
		italic:  r.NewStyle().Italic(true),
		code:    r.NewStyle().Foreground(colorCode),
		bullet:  r.NewStyle().Foreground(colorAccent),
		dim:     r.NewStyle().Faint(true).Foreground(colorMuted),
		err:     r.NewStyle().Bold(true).Foreground(colorError),
		ok:      r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}),
	}
}

func newLipglossRenderer(w io.Writer, profile *termenv.Profile, dark *bool) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if profile != nil {
		r.SetColorProfile(*profile)
	}
	if dark != nil {
		r.SetHasDarkBackground(*dark)
	}
	return r
}
