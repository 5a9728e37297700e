package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrCollaboratorUnavailable, "language model unreachable").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true).
		WithSource("gemini")

	if GetErrorCode(err) != ErrCollaboratorUnavailable {
		t.Fatalf("expected code %s, got %s", ErrCollaboratorUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodesDistinguishable(t *testing.T) {
	t.Parallel()

	empty := NewError(ErrNoCandidates, "no documents survived filtering")
	fatal := NewError(ErrKeywordGeneration, "keyword generation failed")

	if GetErrorCode(empty) == GetErrorCode(fatal) {
		t.Fatalf("empty-corpus and keyword-failure codes must differ")
	}
	if IsRetryable(empty) {
		t.Fatalf("no-candidates is not retryable by default")
	}
}
