package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	testCases := []struct {
		name          string
		errType       ErrorType
		message       string
		underlyingErr error
		expectedStr   string
	}{
		{
			name:          "Server unavailable with underlying error",
			errType:       ErrorTypeServerUnavailable,
			message:       "could not reach LM Studio",
			underlyingErr: errors.New("connection refused"),
			expectedStr:   "ServerUnavailableError (could not reach LM Studio): connection refused",
		},
		{
			name:        "Empty prompt without underlying error",
			errType:     ErrorTypeEmptyPrompt,
			message:     "no prompt given",
			expectedStr: "EmptyPromptError: no prompt given",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := New(tc.errType, tc.message, tc.underlyingErr)

			assert.Equal(t, tc.errType, err.Type)
			assert.Equal(t, tc.message, err.Message)
			assert.Equal(t, tc.expectedStr, err.Error())

			if tc.underlyingErr != nil {
				assert.Equal(t, tc.underlyingErr, errors.Unwrap(err))
			}
		})
	}
}

func TestErrorIsMatchesType(t *testing.T) {
	inner := New(ErrorTypePayloadTooLarge, "body exceeds 10 bytes", nil)
	outer := New(ErrorTypeMalformedResponse, "completion response rejected", inner)
	wrapped := fmt.Errorf("send prompt: %w", outer)

	assert.ErrorIs(t, wrapped, ErrMalformedResponse)
	assert.ErrorIs(t, wrapped, ErrPayloadTooLarge)
	assert.NotErrorIs(t, wrapped, ErrPayloadTooDeep)
	assert.NotErrorIs(t, errors.New("plain"), ErrConfig)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitUnknown},
		{Newf(ErrorTypeInvalidPort, "port %d", 0), ExitValidation},
		{Newf(ErrorTypeInvalidTimeout, "timeout"), ExitValidation},
		{Newf(ErrorTypeEmptyPrompt, "empty"), ExitValidation},
		{Newf(ErrorTypeConfig, "bad"), ExitConfig},
		{fmt.Errorf("wrap: %w", Newf(ErrorTypeServerUnavailable, "down")), ExitNetwork},
		{Newf(ErrorTypeRequestTimeout, "slow"), ExitNetwork},
		{Newf(ErrorTypeModelNotLoaded, "x"), ExitModel},
		{Newf(ErrorTypeNoModelLoaded, "none"), ExitModel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestGuidance(t *testing.T) {
	assert.Contains(t, Newf(ErrorTypeServerUnavailable, "").Guidance(), "lms server start")
	assert.Contains(t, Newf(ErrorTypeModelNotLoaded, "").Guidance(), "lms load")
	assert.Contains(t, Newf(ErrorTypeModelNotLoaded, "").Guidance(), "--auto-load")
	assert.Empty(t, Newf(ErrorTypeInvalidPort, "").Guidance())
}

func TestGuidanceAfterFailedLoad(t *testing.T) {
	err := New(ErrorTypeModelNotLoaded, "failed to load model modelB", errors.New("exit status 1"))

	hint := err.Guidance()
	assert.NotContains(t, hint, "--auto-load")
	assert.Contains(t, hint, "--list-available")
}
