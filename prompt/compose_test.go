package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmlawson/lmsp/errs"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		name  string
		piped string
		arg   string
		mode  PipeMode
		want  string
	}{
		{"append both", "Hello world", "Translate:", PipeModeAppend, "Translate:\n\nHello world"},
		{"prepend both", "Context document", "Based on the above, answer:", PipeModePrepend, "Context document\n\nBased on the above, answer:"},
		{"replace prefers argument", "piped", "argument", PipeModeReplace, "argument"},
		{"replace falls back to piped", "This is piped content", "", PipeModeReplace, "This is piped content"},
		{"append only argument", "", "just ask", PipeModeAppend, "just ask"},
		{"append only piped", "just piped", "", PipeModeAppend, "just piped"},
		{"prepend only argument", "", "just ask", PipeModePrepend, "just ask"},
		{"prepend only piped", "just piped", "", PipeModePrepend, "just piped"},
		{"piped is trimmed", "\n  Document content here \n\n", "Summarize this:", PipeModeAppend, "Summarize this:\n\nDocument content here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compose(tt.piped, tt.arg, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	for _, mode := range PipeModes {
		first, err := Compose("P", "A", mode)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Compose("P", "A", mode)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestComposeEmpty(t *testing.T) {
	for _, mode := range PipeModes {
		_, err := Compose("", "", mode)
		assert.ErrorIs(t, err, errs.ErrEmptyPrompt, string(mode))

		_, err = Compose(" \n", "\t", mode)
		assert.ErrorIs(t, err, errs.ErrEmptyPrompt, string(mode))
	}
}

func TestComposeUnknownMode(t *testing.T) {
	_, err := Compose("p", "a", PipeMode("sideways"))
	assert.ErrorIs(t, err, errs.ErrConfig)
}

func TestParsePipeMode(t *testing.T) {
	m, err := ParsePipeMode("")
	require.NoError(t, err)
	assert.Equal(t, PipeModeAppend, m)

	m, err = ParsePipeMode(" Prepend ")
	require.NoError(t, err)
	assert.Equal(t, PipeModePrepend, m)

	_, err = ParsePipeMode("merge")
	assert.ErrorIs(t, err, errs.ErrConfig)
}
