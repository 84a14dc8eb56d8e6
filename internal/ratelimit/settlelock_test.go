package ratelimit

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleLockDisabledWithoutRedis(t *testing.T) {
	lock := NewSettleLock(nil)
	require.Nil(t, lock)

	_, ok, err := lock.Acquire(context.Background(), snowflake.ID(1))
	assert.False(t, ok)
	assert.Error(t, err)

	assert.NoError(t, lock.Release(context.Background(), snowflake.ID(1), "token"))
}

func TestSettleKeyIsPerUser(t *testing.T) {
	assert.Equal(t, "claimlens:settle:42", settleKey(snowflake.ID(42)))
	assert.NotEqual(t, settleKey(snowflake.ID(1)), settleKey(snowflake.ID(2)))
}
