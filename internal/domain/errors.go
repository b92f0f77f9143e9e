package domain

import "errors"

// Failure classes shared by every layer. Callers classify with errors.Is.
var (
	// ErrNetwork covers rejected requests and non-success statuses from the notes API.
	ErrNetwork = errors.New("network failure")
	// ErrEmptyResult is returned when the notes API answers with zero notes or questions.
	ErrEmptyResult = errors.New("empty result")
	// ErrStorageParse marks malformed persisted state. It is always recovered locally.
	ErrStorageParse = errors.New("storage parse failure")
)
