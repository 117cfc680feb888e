package utils

import "fmt"

// AppError marks a failed infrastructure operation. Op names the subsystem
// and verb ("registry.connect", "queue.connect"), Msg the human-readable
// detail; the underlying cause stays reachable through Unwrap.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError around an underlying cause.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
