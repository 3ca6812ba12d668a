package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Recoverable_PropagatesThroughChain(t *testing.T) {
	inner := Recoverable(KindNetwork, "transport failed", errors.New("connection reset"))
	outer := Wrap(KindSync, "fetch failed", inner)

	assert.True(t, IsRecoverable(outer))
	assert.True(t, IsKind(outer, KindNetwork))
	assert.True(t, IsKind(outer, KindSync))
	assert.False(t, IsKind(outer, KindArchive))
}

func Test_Interrupt_IsNeverRecoverable(t *testing.T) {
	err := Interrupted(errors.New("context canceled"))

	assert.True(t, IsInterrupt(err))
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, SeverityInterrupt, SeverityOf(err))
}

func Test_PlainErrorsAreFatal(t *testing.T) {
	err := errors.New("something broke")

	assert.False(t, IsRecoverable(err))
	assert.False(t, IsInterrupt(err))
	assert.Equal(t, SeverityFatal, SeverityOf(err))
}

func Test_Error_ContextAppearsInMessage(t *testing.T) {
	err := New(KindLibrary, "write failed").With("path", "/tmp/x").With("attempt", 2)

	assert.Contains(t, err.Error(), "library: write failed")
	assert.Contains(t, err.Error(), "attempt=2")
	assert.Contains(t, err.Error(), "path=/tmp/x")
}
