// Package errs defines the error taxonomy shared by every lmsp package.
//
// Each failure is an *Error carrying an ErrorType. Callers branch on the type
// with errors.Is against the exported sentinels:
//
//	if errors.Is(err, errs.ErrModelNotLoaded) {
//	    ...
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of an error
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfig
	ErrorTypeInvalidModelName
	ErrorTypeInvalidPort
	ErrorTypeInvalidTimeout
	ErrorTypePayloadTooLarge
	ErrorTypePayloadTooDeep
	ErrorTypeEmptyPrompt
	ErrorTypeModelNotLoaded
	ErrorTypeNoModelLoaded
	ErrorTypeServerUnavailable
	ErrorTypeRequestTimeout
	ErrorTypeMalformedResponse
)

// Class groups error types by how the CLI reports them.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassConfig
	ClassNetwork
	ClassModel
)

// Error is the error value returned by lmsp packages.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

// Sentinels for errors.Is. Only the Type is compared.
var (
	ErrConfig            = &Error{Type: ErrorTypeConfig}
	ErrInvalidModelName  = &Error{Type: ErrorTypeInvalidModelName}
	ErrInvalidPort       = &Error{Type: ErrorTypeInvalidPort}
	ErrInvalidTimeout    = &Error{Type: ErrorTypeInvalidTimeout}
	ErrPayloadTooLarge   = &Error{Type: ErrorTypePayloadTooLarge}
	ErrPayloadTooDeep    = &Error{Type: ErrorTypePayloadTooDeep}
	ErrEmptyPrompt       = &Error{Type: ErrorTypeEmptyPrompt}
	ErrModelNotLoaded    = &Error{Type: ErrorTypeModelNotLoaded}
	ErrNoModelLoaded     = &Error{Type: ErrorTypeNoModelLoaded}
	ErrServerUnavailable = &Error{Type: ErrorTypeServerUnavailable}
	ErrRequestTimeout    = &Error{Type: ErrorTypeRequestTimeout}
	ErrMalformedResponse = &Error{Type: ErrorTypeMalformedResponse}
)

// New creates a new Error
func New(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Newf creates a new Error with a formatted message and no cause.
func Newf(errType ErrorType, format string, args ...any) *Error {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.TypeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.TypeString(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func (e *Error) TypeString() string {
	switch e.Type {
	case ErrorTypeConfig:
		return "ConfigError"
	case ErrorTypeInvalidModelName:
		return "InvalidModelNameError"
	case ErrorTypeInvalidPort:
		return "InvalidPortError"
	case ErrorTypeInvalidTimeout:
		return "InvalidTimeoutError"
	case ErrorTypePayloadTooLarge:
		return "PayloadTooLargeError"
	case ErrorTypePayloadTooDeep:
		return "PayloadTooDeepError"
	case ErrorTypeEmptyPrompt:
		return "EmptyPromptError"
	case ErrorTypeModelNotLoaded:
		return "ModelNotLoadedError"
	case ErrorTypeNoModelLoaded:
		return "NoModelLoadedError"
	case ErrorTypeServerUnavailable:
		return "ServerUnavailableError"
	case ErrorTypeRequestTimeout:
		return "RequestTimeoutError"
	case ErrorTypeMalformedResponse:
		return "MalformedResponseError"
	default:
		return "UnknownError"
	}
}

// Class returns the reporting class of the error type.
func (e *Error) Class() Class {
	switch e.Type {
	case ErrorTypeConfig:
		return ClassConfig
	case ErrorTypeInvalidModelName, ErrorTypeInvalidPort, ErrorTypeInvalidTimeout, ErrorTypePayloadTooLarge,
		ErrorTypePayloadTooDeep, ErrorTypeEmptyPrompt:
		return ClassValidation
	case ErrorTypeServerUnavailable, ErrorTypeRequestTimeout, ErrorTypeMalformedResponse:
		return ClassNetwork
	case ErrorTypeModelNotLoaded, ErrorTypeNoModelLoaded:
		return ClassModel
	default:
		return ClassUnknown
	}
}

// Guidance returns a hint for the operator, or "" when there is nothing to add.
func (e *Error) Guidance() string {
	switch e.Type {
	case ErrorTypeServerUnavailable:
		return "Start the LM Studio server with 'lms server start'."
	case ErrorTypeRequestTimeout:
		return "The model took too long to answer; raise --timeout or use a smaller model."
	case ErrorTypeNoModelLoaded:
		return "Load a model with 'lms load <model>'."
	case ErrorTypeModelNotLoaded:
		if e.Err != nil {
			return "Check the name against 'lmsp --list-available' or load it by hand with 'lms load <model>'."
		}
		return "Load it with 'lms load <model>' or pass --auto-load."
	case ErrorTypeEmptyPrompt:
		return "Pass a prompt as an argument or pipe text on standard input."
	case ErrorTypeConfig:
		return "Check the configuration file; run 'lmsp --config-schema' for the accepted keys."
	default:
		return ""
	}
}

// Exit codes returned by the lmsp command.
const (
	ExitOK         = 0
	ExitUnknown    = 1
	ExitValidation = 2
	ExitConfig     = 3
	ExitNetwork    = 4
	ExitModel      = 5
)

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if !errors.As(err, &e) {
		return ExitUnknown
	}
	switch e.Class() {
	case ClassValidation:
		return ExitValidation
	case ClassConfig:
		return ExitConfig
	case ClassNetwork:
		return ExitNetwork
	case ClassModel:
		return ExitModel
	default:
		return ExitUnknown
	}
}
