package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreErrorIsMatchesKindNotMessage(t *testing.T) {
	err := New(KindBudgetExceeded, nil, "daypart %s over budget", "Morning")
	assert.True(t, errors.Is(err, BudgetExceeded))
	assert.False(t, errors.Is(err, LockBusy))
}

func TestCoreErrorUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(KindUnreachable, cause, "library accessor search")

	assert.True(t, errors.Is(err, Unreachable))
	require.ErrorIs(t, err, cause)
}

func TestKindOfExtractsWrappedCoreError(t *testing.T) {
	inner := New(KindLLMError, nil, "two malformed outputs")
	wrapped := fmt.Errorf("selecting daypart Morning: %w", inner)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindLLMError, kind)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
