package allocatorcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithLogFieldDoesNotMutateParent(t *testing.T) {
	parent := Background()
	child := WithLogField(parent, "profile", 0)

	assert.NotEqual(t, parent.Log, child.Log)
}

func TestWithTimeoutCancels(t *testing.T) {
	parent := Background()
	ctx, cancel := WithTimeout(parent, time.Millisecond)
	defer cancel()

	<-ctx.Done()
	assert.Error(t, ctx.Err())
}
