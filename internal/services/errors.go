package services

import "fmt"

type InvalidInputError struct{ Message string }

func (e *InvalidInputError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// BackendExhaustedError is returned when every model candidate failed for a
// turn. Err is the last backend error observed.
type BackendExhaustedError struct {
	Tried    int
	Err      error
	Attempts []Attempt
}

func (e *BackendExhaustedError) Error() string {
	return fmt.Sprintf("failed to get response after trying all %d models: %v", e.Tried, e.Err)
}

func (e *BackendExhaustedError) Unwrap() error { return e.Err }
