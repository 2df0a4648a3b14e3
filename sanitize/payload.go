package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/kmlawson/lmsp/errs"
)

// Limits bound a JSON document before it is decoded.
type Limits struct {
	MaxBytes int
	MaxDepth int
	// Strict rejects object keys that do not map to a struct field.
	Strict bool
}

// ResponseLimits applies to server responses.
var ResponseLimits = Limits{MaxBytes: MaxResponseBytes, MaxDepth: MaxJSONDepth}

// ReadLimited reads r to the end, failing with PayloadTooLargeError once more
// than max bytes are available.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errs.Newf(errs.ErrorTypePayloadTooLarge, "input exceeds %d bytes", max)
	}
	return data, nil
}

// CheckDepth walks the JSON tokens of data and fails with PayloadTooDeepError
// once nesting exceeds max. Syntax errors are MalformedResponseError.
func CheckDepth(data []byte, max int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			if depth != 0 {
				return errs.New(errs.ErrorTypeMalformedResponse, "invalid JSON", io.ErrUnexpectedEOF)
			}
			return nil
		}
		if err != nil {
			return errs.New(errs.ErrorTypeMalformedResponse, "invalid JSON", err)
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > max {
				return errs.Newf(errs.ErrorTypePayloadTooDeep, "JSON nesting exceeds depth %d", max)
			}
		case '}', ']':
			depth--
		}
	}
}

// DecodeJSON checks data against limits and decodes it into v.
func DecodeJSON(data []byte, v any, limits Limits) error {
	if limits.MaxBytes > 0 && len(data) > limits.MaxBytes {
		return errs.Newf(errs.ErrorTypePayloadTooLarge,
			"JSON document is %d bytes, maximum is %d", len(data), limits.MaxBytes)
	}
	if limits.MaxDepth > 0 {
		if err := CheckDepth(data, limits.MaxDepth); err != nil {
			return err
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if limits.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return errs.New(errs.ErrorTypeMalformedResponse, "JSON does not match the expected shape", err)
	}
	if dec.More() {
		return errs.Newf(errs.ErrorTypeMalformedResponse, "unexpected data after JSON document")
	}
	return nil
}
