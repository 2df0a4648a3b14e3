package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"

	"github.com/kmlawson/lmsp/errs"
)

// transportError maps a failed HTTP round trip to the error taxonomy.
// Deadlines become RequestTimeoutError, everything that prevented a
// connection becomes ServerUnavailableError.
func transportError(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return errs.New(errs.ErrorTypeRequestTimeout, "no response from "+endpoint+" before the timeout", err)
	}
	if isRefused(err) {
		return errs.New(errs.ErrorTypeServerUnavailable, "nothing is listening at "+endpoint, err)
	}
	return errs.New(errs.ErrorTypeServerUnavailable, "cannot reach LM Studio at "+endpoint, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// isRefused reports whether err means nothing listens on the port.
func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// statusError reports a non-200 answer. The body excerpt is sanitized by the
// caller before it is shown.
func statusError(status int, excerpt string) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	if excerpt != "" {
		msg += ": " + excerpt
	}
	return errs.New(errs.ErrorTypeMalformedResponse, msg, nil)
}

// malformed wraps a body that failed to parse. Errors that are already
// MalformedResponseError pass through; size and depth errors stay reachable
// through errors.Is.
func malformed(what string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Type == errs.ErrorTypeMalformedResponse {
		return err
	}
	return errs.New(errs.ErrorTypeMalformedResponse, what, err)
}
