package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrUserCancelled     = errors.New("cancelled by user")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrTemporary         = errors.New("temporary failure")
	ErrNotFound          = errors.New("not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
