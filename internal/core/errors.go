package core

import (
	"errors"
	"fmt"
)

// Failure captures transport-neutral error details that adapters (CLI exit
// codes, future HTTP handlers) can map to their own vocabulary.
type Failure struct {
	Code       string
	Detail     string
	HTTPStatus int // optional hint for HTTP adapters
}

func (f Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	}
	return f.Code
}

// FailureCode extracts the machine-readable code from an error, or "" when
// the error is not a Failure.
func FailureCode(err error) string {
	var f Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}
