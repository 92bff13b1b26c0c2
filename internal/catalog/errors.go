package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned by New when no API key is configured.
	ErrMissingCredential = errors.New("catalog: api credential is required")
	// ErrInvalidCategory is returned when FetchTopItems gets an empty category.
	ErrInvalidCategory = errors.New("catalog: category is required")
	// ErrTransport covers network failures, non-2xx responses and bodies that
	// don't decode into the expected shape.
	ErrTransport = errors.New("catalog: transport error")
	// ErrEmptyResult means the response was well-formed but had nothing usable.
	ErrEmptyResult = errors.New("catalog: empty result")
	// ErrMalformedRecord means a present record lacks a required field.
	ErrMalformedRecord = errors.New("catalog: malformed record")
)

// MalformedRecordError identifies the book_details record that failed
// validation. It matches ErrMalformedRecord with errors.Is.
type MalformedRecordError struct {
	Category Category
	Result   int // index into results
	Record   int // index into results[Result].book_details
	Field    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("catalog: malformed record in %q: results[%d].book_details[%d] is missing %q",
		string(e.Category), e.Result, e.Record, e.Field)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// StatusError is wrapped inside ErrTransport for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d", e.Endpoint, e.StatusCode)
}
