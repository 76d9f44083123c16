package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("concurrent update conflict")
	ErrDuplicate  = errors.New("already exists")
	ErrTransport  = errors.New("delivery failed")
)

// Validationf wraps ErrValidation with a message
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a message
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Duplicatef reports an id that is already taken. It matches both
// ErrDuplicate and ErrValidation.
func Duplicatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s %w", ErrValidation, fmt.Sprintf(format, args...), ErrDuplicate)
}
