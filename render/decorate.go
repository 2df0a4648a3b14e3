package render

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletRe  = regexp.MustCompile(`^(\s*)[-*]\s+(.*)$`)
	// Alternatives are tried left to right: code, bold, italic.
	inlineRe = regexp.MustCompile("`([^`]+)`" +
		`|\*\*(.+?)\*\*` +
		`|__(.+?)__` +
		`|\*([^*\s](?:[^*]*[^*\s])?)\*` +
		`|\b_([^_\s](?:[^_]*[^_\s])?)_\b`)
)

// decorateLine styles one line of lightweight markdown. line must already be
// sanitized and must not contain a newline.
func (s styles) decorateLine(line string) string {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return s.heading.Render(stripInline(m[2]))
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return m[1] + s.bullet.Render("•") + " " + s.decorateInline(m[2])
	}
	return s.decorateInline(line)
}

func (s styles) decorateInline(text string) string {
	matches := inlineRe.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		switch {
		case m[2] >= 0:
			b.WriteString(s.code.Render(text[m[2]:m[3]]))
		case m[4] >= 0:
			b.WriteString(s.bold.Render(text[m[4]:m[5]]))
		case m[6] >= 0:
			b.WriteString(s.bold.Render(text[m[6]:m[7]]))
		case m[8] >= 0:
			b.WriteString(s.italic.Render(text[m[8]:m[9]]))
		case m[10] >= 0:
			b.WriteString(s.italic.Render(text[m[10]:m[11]]))
		}
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// stripInline removes inline markers, for headings that are styled whole.
func stripInline(text string) string {
	return inlineRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineRe.FindStringSubmatch(m)
		for _, g := range sub[1:] {
			if g != "" {
				return g
			}
		}
		return m
	})
}
