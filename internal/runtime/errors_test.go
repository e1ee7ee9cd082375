package runtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Formatting(t *testing.T) {
	err := ErrExecution("NodeA", "boom")
	assert.Equal(t, "[execution] node NodeA: boom", err.Error())

	cause := fmt.Errorf("disk full")
	wrapped := ErrResource("write failed", cause)
	assert.Equal(t, "[resource] write failed: disk full", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, ErrCatTimeout, Category(ErrTimeout("too slow")))
	assert.Equal(t, ErrCatState, Category(ErrState("bad state")))
	assert.Equal(t, ErrCatTimeout, Category(fmt.Errorf("wrap: %w", ErrTimeout("t"))))
	assert.Equal(t, ErrCatExecution, Category(fmt.Errorf("plain")), "unclassified errors default to execution")
}

func TestCapacityError(t *testing.T) {
	err := &CapacityError{Active: 10, Limit: 10}
	assert.Equal(t, "concurrent workflow limit reached (10/10)", err.Error())
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusStopped.Terminal())
}
