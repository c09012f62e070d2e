package model

import (
	"errors"
	"fmt"
)

var (
	// ErrBadCredentials is returned when the provider rejects the card/password pair
	ErrBadCredentials = errors.New("bad credentials")
	// ErrEmptyPassword is returned before any network call when no password was given
	ErrEmptyPassword = errors.New("empty password")
)

// MalformedResponseError reports a provider response that does not have the
// expected shape or content. Step names the protocol step, Field the offending
// field and Value what was received.
type MalformedResponseError struct {
	Step  string
	Field string
	Value any
	Err   error
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("malformed %s response: unexpected %s %v", e.Step, e.Field, formatValue(e.Value))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// RawJSON is a received JSON value that is not a string, kept as it was sent
type RawJSON string

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// QuotaMismatch carries the three counters of a plan whose used and remaining
// amounts do not add up to the total. Values are in bytes.
type QuotaMismatch struct {
	Total     int64
	Used      int64
	Remaining int64
}

func (q QuotaMismatch) String() string {
	return fmt.Sprintf("(used %d + remaining %d != total %d)", q.Used, q.Remaining, q.Total)
}
