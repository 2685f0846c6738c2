package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotInitialized    = errors.New("medical rag service not initialized")
	ErrInitializing      = errors.New("medical rag service initialization in progress")
	ErrIndexBuild        = errors.New("index build failed")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrGeneration        = errors.New("generation failed")
	ErrDomainNotFound    = errors.New("domain not found")
	ErrTemporary         = errors.New("temporary failure")
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
