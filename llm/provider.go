package llm

import (
	"context"

	"github.com/BaSui01/memflow/types"
)

// Provider is the language model collaborator used by the search pipeline.
// Complete runs one text generation call; Embed vectorizes a batch of
// texts. Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// ErrUnavailable reports that no language model collaborator is reachable.
// Callers branch on this with errors.Is to pick their degraded behavior.
var ErrUnavailable = types.NewError(types.ErrCollaboratorUnavailable, "language model unavailable").WithRetryable(true)

// UnavailableProvider is wired in when no provider is configured. Every
// call fails with ErrUnavailable so callers exercise their fallback paths
// instead of panicking on a nil provider.
type UnavailableProvider struct{}

var _ Provider = (*UnavailableProvider)(nil)

func (UnavailableProvider) Name() string { return "unavailable" }

func (UnavailableProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (UnavailableProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, ErrUnavailable
}
