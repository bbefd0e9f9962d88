package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(dataUnavailable("price history for %s", "TSLA")))
	assert.True(t, IsUserError(fmt.Errorf("%w: A and sp500", ErrAlignmentEmpty)))
	assert.True(t, IsUserError(degenerate("zero benchmark variance")))
	assert.True(t, IsUserError(fmt.Errorf("running: %w", invalidSelection("no stocks selected"))))

	assert.False(t, IsUserError(errors.New("connection refused")))
	assert.False(t, IsUserError(context.Canceled))
	assert.False(t, IsUserError(nil))
}

func TestUserMessage(t *testing.T) {
	err := invalidSelection("IBM is not an allowed stock")
	assert.Equal(t, "invalid input, please adjust selection: invalid selection: IBM is not an allowed stock", UserMessage(err))
}
