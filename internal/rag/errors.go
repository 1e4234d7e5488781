package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports unusable settings such as chunk_size <= overlap.
	ErrConfiguration = errors.New("rag configuration error")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrFeatureDisabled is returned by a disabled assistant under the strict policy.
	ErrFeatureDisabled = errors.New("rag feature disabled")
)

const (
	OpEmbed    = "embed"
	OpSearch   = "search"
	OpComplete = "complete"
)

// ServiceError wraps a failed call to an external model service or the vector index.
type ServiceError struct {
	Op    string
	Batch int
	Err   error
}

func (e *ServiceError) Error() string {
	if e.Op == OpEmbed {
		return fmt.Sprintf("embed batch %d failed: %v", e.Batch, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
