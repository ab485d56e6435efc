// Package protocol defines the JSON request and response bodies of the odds
// HTTP API and the coercion rules applied to incoming fields. Requests are
// decoded loosely (numeric strings are accepted where a number is expected)
// so that browser clients posting form values keep working.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field bounds.
const (
	MinMaxX = 1
	MaxMaxX = 1000000

	MaxChallengeChars = 500
	MaxReportChars    = 2000
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// Validation error kinds. Match them with errors.Is.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrInvalidRange   = errors.New("invalid range")
	ErrMissingField   = errors.New("missing field")
)

// FieldError carries a client-facing message alongside its error kind.
type FieldError struct {
	Kind    error
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return e.Kind }

// InvalidPayload returns the error reported for an unparseable body.
func InvalidPayload() error {
	return &FieldError{Kind: ErrInvalidPayload, Message: "Invalid JSON"}
}

// MaxXRangeError returns the error reported when maxX is not acceptable.
func MaxXRangeError() error {
	return &FieldError{
		Kind:    ErrInvalidRange,
		Message: fmt.Sprintf("maxX must be an integer between %d and %d", MinMaxX, MaxMaxX),
	}
}

// PickRangeError returns the error reported when a pick falls outside
// [1, maxX]. The message echoes the session's bound.
func PickRangeError(maxX int) error {
	return &FieldError{
		Kind:    ErrInvalidRange,
		Message: fmt.Sprintf("pick must be an integer between 1 and %d", maxX),
	}
}

// MissingTextError returns the error reported when challenge or report is
// empty after normalization.
func MissingTextError() error {
	return &FieldError{Kind: ErrMissingField, Message: "challenge and report are required"}
}

// ---------------------------------------------------------------------------
// Client -> Server bodies
// ---------------------------------------------------------------------------

// CreateRequest is the decoded body of POST /api/create. MaxX is known to be
// an integer but has not been range-checked; the text fields are trimmed and
// truncated but may be empty.
type CreateRequest struct {
	MaxX      int
	Challenge string
	Report    string
}

// SubmitRequest is the decoded body of POST /api/session/{id}/submit.
type SubmitRequest struct {
	Pick int
}

// DecodeCreate parses a create body. It fails with ErrInvalidPayload when the
// body is not a JSON object and with ErrInvalidRange when maxX is not an
// integer.
func DecodeCreate(data []byte) (CreateRequest, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return CreateRequest{}, err
	}

	maxX, ok := coerceInt(fields["maxX"])
	if !ok || maxX < math.MinInt32 || maxX > math.MaxInt32 {
		return CreateRequest{}, MaxXRangeError()
	}

	return CreateRequest{
		MaxX:      int(maxX),
		Challenge: ClampText(coerceText(fields["challenge"]), MaxChallengeChars),
		Report:    ClampText(coerceText(fields["report"]), MaxReportChars),
	}, nil
}

// DecodeSubmit parses a submit body and checks the pick against the
// session's bound.
func DecodeSubmit(data []byte, maxX int) (SubmitRequest, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return SubmitRequest{}, err
	}

	pick, ok := coerceInt(fields["pick"])
	if !ok || pick < 1 || pick > int64(maxX) {
		return SubmitRequest{}, PickRangeError(maxX)
	}
	return SubmitRequest{Pick: int(pick)}, nil
}

// ClampText trims surrounding whitespace and truncates s to at most max
// characters.
func ClampText(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// decodeObject requires data to be a single JSON object.
func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, InvalidPayload()
	}
	return fields, nil
}

// coerceInt accepts JSON numbers and numeric strings that hold an integral
// value. Everything else, including a missing field, is not an integer.
func coerceInt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var text string
	switch c := raw[0]; {
	case c == '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
		if text == "" {
			// An empty string counts as zero.
			return 0, true
		}
	case c == '-' || (c >= '0' && c <= '9'):
		text = string(raw)
	default:
		return 0, false
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// coerceText turns a JSON value into text: strings as-is, numbers and true as
// their literal form, anything else as empty.
func coerceText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw)
	case string(raw) == "true":
		return "true"
	default:
		return ""
	}
}

// ---------------------------------------------------------------------------
// Server -> Client bodies
// ---------------------------------------------------------------------------

// CreateResponse is returned by a successful create.
type CreateResponse struct {
	SessionID string `json:"sessionId"`
}

// SessionView is the public projection of a session. It has no pick field.
type SessionView struct {
	SessionID string `json:"sessionId"`
	MaxX      int    `json:"maxX"`
	Challenge string `json:"challenge"`
	Report    string `json:"report"`
	Locked    bool   `json:"locked"`
}

// SubmitResponse confirms an accepted pick.
type SubmitResponse struct {
	OK   bool `json:"ok"`
	Pick int  `json:"pick"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
