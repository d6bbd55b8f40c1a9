package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := Errorf(KindQueueFull, "queue", "queue is full (%d jobs)", 100)
	assert.Equal(t, "queue_full (queue): queue is full (100 jobs)", err.Error())

	wrapped := NewError(KindTransientTransport, "adapter", errors.New("connection refused"), "")
	assert.Equal(t, "transient_transport (adapter): connection refused", wrapped.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindRateLimited, KindOf(Errorf(KindRateLimited, "limiter", "slow down")))

	// Classification survives wrapping.
	inner := Errorf(KindDataIntegrity, "embed", "dimension drift")
	assert.Equal(t, KindDataIntegrity, KindOf(fmt.Errorf("stage: %w", inner)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Errorf(KindTransientTransport, "http", "timeout")))

	for _, kind := range []Kind{KindInvalidInput, KindQueueFull, KindRateLimited,
		KindServiceUnavailable, KindDataIntegrity, KindCancelled, KindInternal} {
		assert.False(t, IsRetryable(Errorf(kind, "op", "nope")), string(kind))
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}
