// Package sanitize validates untrusted input and strips terminal control
// sequences from untrusted output.
package sanitize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kmlawson/lmsp/errs"
)

const (
	// MaxModelNameLength bounds model identifiers.
	MaxModelNameLength = 256
	// MaxPromptBytes bounds the composed prompt.
	MaxPromptBytes = 10 << 20
	// MaxInputBytes bounds piped standard input.
	MaxInputBytes = 10 << 20
	// MaxResponseBytes bounds a completion response body or a whole stream.
	MaxResponseBytes = 10 << 20
	// MaxJSONDepth bounds nesting of any JSON document lmsp parses.
	MaxJSONDepth = 64
	// MaxTimeoutSeconds bounds the request timeout.
	MaxTimeoutSeconds = 86400
)

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidateModelName checks that name is safe to put in a request body and to
// hand to the lms command line.
func ValidateModelName(name string) error {
	if name == "" {
		return errs.Newf(errs.ErrorTypeInvalidModelName, "model name is empty")
	}
	if len(name) > MaxModelNameLength {
		return errs.Newf(errs.ErrorTypeInvalidModelName,
			"model name is %d bytes, maximum is %d", len(name), MaxModelNameLength)
	}
	if !modelNamePattern.MatchString(name) {
		return errs.Newf(errs.ErrorTypeInvalidModelName,
			"model name %q may only contain letters, digits, '-', '_', '.' and '/'", Terminal(name))
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return errs.Newf(errs.ErrorTypeInvalidModelName, "model name %q contains a path traversal sequence", name)
	}
	return nil
}

// ValidatePort checks 1 <= port <= 65535.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return errs.Newf(errs.ErrorTypeInvalidPort, "port %d is outside 1-65535", port)
	}
	return nil
}

// ValidateTimeout checks a timeout given in seconds.
func ValidateTimeout(seconds int) error {
	if seconds < 1 || seconds > MaxTimeoutSeconds {
		return errs.Newf(errs.ErrorTypeInvalidTimeout, "timeout %ds is outside 1-%d", seconds, MaxTimeoutSeconds)
	}
	return nil
}

// ParsePort parses and validates a port given as text.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errs.New(errs.ErrorTypeInvalidPort, "port "+strconv.Quote(Terminal(s))+" is not a number", err)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// ValidatePrompt normalizes prompt text and checks it is non-empty and within
// MaxPromptBytes. Invalid UTF-8 is replaced and NUL bytes are dropped.
func ValidatePrompt(prompt string) (string, error) {
	if len(prompt) > MaxPromptBytes {
		return "", errs.Newf(errs.ErrorTypePayloadTooLarge,
			"prompt is %d bytes, maximum is %d", len(prompt), MaxPromptBytes)
	}
	if !utf8.ValidString(prompt) {
		prompt = strings.ToValidUTF8(prompt, "�")
	}
	prompt = strings.ReplaceAll(prompt, "\x00", "")
	if strings.TrimSpace(prompt) == "" {
		return "", errs.Newf(errs.ErrorTypeEmptyPrompt, "prompt is empty")
	}
	return prompt, nil
}
