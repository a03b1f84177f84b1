package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/CliForge/percy/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupStack_Run(t *testing.T) {
	log, mem := logger.NewMemory()
	log.SetLevel(logger.LevelDebug)

	var order []string
	var stack CleanupStack
	stack.Push("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	stack.Push("failing", func(ctx context.Context) error {
		order = append(order, "failing")
		return errors.New("nope")
	})
	stack.Push("panicking", func(ctx context.Context) error {
		order = append(order, "panicking")
		panic("oops")
	})
	stack.Push("noop", nil)
	require.Equal(t, 4, stack.Len())

	status := stack.Run(context.Background(), log)

	assert.Equal(t, []string{"panicking", "failing", "first"}, order)
	assert.Equal(t, 4, status.TotalActions)
	assert.Equal(t, 4, status.ExecutedActions)
	assert.Equal(t, 2, status.SuccessfulActions)
	assert.Equal(t, 2, status.FailedActions)
	require.Len(t, status.Errors, 2)
	assert.EqualError(t, status.Errors[0], "cleanup panicking failed: panic: oops")
	assert.EqualError(t, status.Errors[1], "cleanup failing failed: nope")
	assert.Contains(t, mem.Stdout(), "[percy] Cleanup failing failed: nope")
	assert.Zero(t, stack.Len())
}

func TestCleanupStack_RunEmpty(t *testing.T) {
	log, _ := logger.NewMemory()

	var stack CleanupStack
	status := stack.Run(context.Background(), log)

	assert.Zero(t, status.TotalActions)
	assert.Empty(t, status.Errors)
}
