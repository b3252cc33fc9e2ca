package allocatorerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigErrorsAggregates(t *testing.T) {
	err := NewConfigErrors(
		&ConfigError{Field: "minExecutors", Value: -1, Message: "must be >= 0"},
		&ConfigError{Field: "maxExecutors", Value: 3, Message: "must be >= minExecutors"},
	)
	require := assert.New(t)
	require.Error(err)
	require.Contains(err.Error(), "minExecutors")
	require.Contains(err.Error(), "maxExecutors")
}

func TestNewConfigErrorsEmpty(t *testing.T) {
	assert.Nil(t, NewConfigErrors())
}

func TestClusterClientErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewClusterClientError("killExecutors", true, cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "killExecutors")
	assert.NotNil(t, err.Unwrap())
}

func TestInconsistentEventErrorMessage(t *testing.T) {
	err := &InconsistentEventError{Kind: "TaskEnd", Detail: "task 3 of stage 1 attempt 0 was not running"}
	assert.Contains(t, err.Error(), "TaskEnd")
	assert.Contains(t, err.Error(), "was not running")
}

func TestProfileNotFoundErrorMessage(t *testing.T) {
	err := &ProfileNotFoundError{ProfileId: 42}
	assert.Contains(t, err.Error(), "42")
}
