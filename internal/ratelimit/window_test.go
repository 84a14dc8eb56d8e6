package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/clock"
	"github.com/claimlens/claimlens/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupWindowTest(t *testing.T) (*SlidingWindow, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&RateLimitSample{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewSlidingWindow(db, zap.NewNop(), node, fc), fc, db
}

func TestSlidingWindowAllow(t *testing.T) {
	window, fc, _ := setupWindowTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := window.Allow(ctx, "unlock:user:1", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d should fit the window", i+1)
	}

	allowed, err := window.Allow(ctx, "unlock:user:1", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, allowed)

	// A denied hit is not recorded, so it cannot extend the lockout.
	fc.Advance(61 * time.Second)
	allowed, err = window.Allow(ctx, "unlock:user:1", time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSlidingWindowBucketsAreIndependent(t *testing.T) {
	window, _, _ := setupWindowTest(t)
	ctx := context.Background()

	allowed, err := window.Allow(ctx, "unlock:user:1", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = window.Allow(ctx, "unlock:user:1", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = window.Allow(ctx, "unlock:user:2", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSlidingWindowPrunesStaleSamples(t *testing.T) {
	window, fc, db := setupWindowTest(t)
	ctx := context.Background()

	_, err := window.Allow(ctx, "unlock:user:3", time.Minute, 5)
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)
	_, err = window.Allow(ctx, "unlock:user:3", time.Minute, 5)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&RateLimitSample{}).
		Where("bucket = ?", "unlock:user:3").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSlidingWindowRejectsBadArguments(t *testing.T) {
	window, _, _ := setupWindowTest(t)
	ctx := context.Background()

	_, err := window.Allow(ctx, "", time.Minute, 3)
	assert.Error(t, err)

	_, err = window.Allow(ctx, "unlock:user:4", 0, 3)
	assert.Error(t, err)

	_, err = window.Allow(ctx, "unlock:user:4", time.Minute, 0)
	assert.Error(t, err)
}

func TestUnlockLimiterNilSafety(t *testing.T) {
	var limiter *UnlockLimiter

	allowed, err := limiter.AllowUser(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestUnlockLimiterUsesConfiguredWindow(t *testing.T) {
	window, _, _ := setupWindowTest(t)
	limiter := NewUnlockLimiter(config.Config{
		UnlockRateWindowSeconds: 60,
		UnlockRateMax:           2,
	}, window)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.AllowUser(ctx, snowflake.ID(9))
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.AllowUser(ctx, snowflake.ID(9))
	require.NoError(t, err)
	assert.False(t, allowed)
}
