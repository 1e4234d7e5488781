package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FailurePolicy decides, once per deployment, what callers see when
// retrieval or generation fails.
type FailurePolicy string

const (
	// PolicyStrict returns typed errors.
	PolicyStrict FailurePolicy = "strict"
	// PolicyBestEffort turns failures into a degraded answer carrying the error text.
	PolicyBestEffort FailurePolicy = "best_effort"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyStrict, PolicyBestEffort:
		return FailurePolicy(s), nil
	}
	return "", fmt.Errorf("%w: unknown failure policy %q", ErrConfiguration, s)
}

// Assistant answers questions about the book: retrieve, then generate.
type Assistant struct {
	retriever *Retriever
	generator *Generator
	topK      int
	policy    FailurePolicy
	disabled  error
	logger    *slog.Logger
}

func NewAssistant(retriever *Retriever, generator *Generator, topK int, policy FailurePolicy, logger *slog.Logger) *Assistant {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Assistant{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		policy:    policy,
		logger:    logger,
	}
}

// NewDisabledAssistant answers every question with reason, for deployments
// started without model credentials.
func NewDisabledAssistant(reason error, policy FailurePolicy, logger *slog.Logger) *Assistant {
	return &Assistant{policy: policy, disabled: reason, logger: logger}
}

func (a *Assistant) Enabled() bool {
	return a.disabled == nil
}

func (a *Assistant) Policy() FailurePolicy {
	return a.policy
}

// GetAnswer retrieves context for query and generates a grounded answer.
// ErrInvalidInput is returned under both policies.
func (a *Assistant) GetAnswer(ctx context.Context, query string, history []Turn) (*Answer, error) {
	if a.disabled != nil {
		return a.fail(fmt.Errorf("%w: %v", ErrFeatureDisabled, a.disabled))
	}

	contexts, err := a.retriever.Retrieve(ctx, query, a.topK)
	if errors.Is(err, ErrInvalidInput) {
		return nil, err
	}
	if err != nil {
		var svcErr *ServiceError
		if !errors.As(err, &svcErr) && ctx.Err() == nil {
			// embedding failures are already typed, anything else came from the store
			err = &ServiceError{Op: OpSearch, Err: err}
		}
		return a.fail(fmt.Errorf("retrieve context failed: %w", err))
	}

	answer, err := a.generator.Generate(ctx, query, history, contexts)
	if errors.Is(err, ErrInvalidInput) {
		return nil, err
	}
	if err != nil {
		return a.fail(fmt.Errorf("generate answer failed: %w", err))
	}
	return answer, nil
}

func (a *Assistant) fail(err error) (*Answer, error) {
	if a.policy == PolicyStrict {
		return nil, err
	}
	a.logger.Warn("assistant degraded answer", "error", err)
	return &Answer{Text: "Error: " + err.Error(), Citations: []Citation{}, Degraded: true}, nil
}
