// Package prompt combines piped standard input with the prompt argument.
package prompt

import (
	"strings"

	"github.com/kmlawson/lmsp/errs"
)

// PipeMode is the policy for combining piped text with the prompt argument.
type PipeMode string

const (
	// PipeModeReplace uses the argument when present, the piped text otherwise.
	PipeModeReplace PipeMode = "replace"
	// PipeModeAppend places the piped text after the argument.
	PipeModeAppend PipeMode = "append"
	// PipeModePrepend places the piped text before the argument.
	PipeModePrepend PipeMode = "prepend"

	// DefaultPipeMode applies when neither config nor flags choose one.
	DefaultPipeMode = PipeModeAppend
)

// Separator joins piped text and the argument.
const Separator = "\n\n"

// PipeModes lists the accepted modes in documentation order.
var PipeModes = []PipeMode{PipeModeReplace, PipeModeAppend, PipeModePrepend}

// ParsePipeMode validates s. The empty string selects DefaultPipeMode.
func ParsePipeMode(s string) (PipeMode, error) {
	switch m := PipeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultPipeMode, nil
	case PipeModeReplace, PipeModeAppend, PipeModePrepend:
		return m, nil
	default:
		return "", errs.Newf(errs.ErrorTypeConfig, "unknown pipe mode %q (want replace, append or prepend)", s)
	}
}

// Compose builds the final prompt from piped text and the argument. Piped
// text is trimmed of surrounding whitespace.
func Compose(piped, arg string, mode PipeMode) (string, error) {
	piped = strings.TrimSpace(piped)
	if strings.TrimSpace(arg) == "" {
		arg = ""
	}

	if piped == "" && arg == "" {
		return "", errs.Newf(errs.ErrorTypeEmptyPrompt, "no prompt argument and no piped input")
	}

	switch mode {
	case PipeModeReplace:
		if arg != "" {
			return arg, nil
		}
		return piped, nil
	case PipeModeAppend:
		return join(arg, piped), nil
	case PipeModePrepend:
		return join(piped, arg), nil
	default:
		return "", errs.Newf(errs.ErrorTypeConfig, "unknown pipe mode %q", string(mode))
	}
}

func join(first, second string) string {
	switch {
	case first == "":
		return second
	case second == "":
		return first
	default:
		return first + Separator + second
	}
}
