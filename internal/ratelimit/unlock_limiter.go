package ratelimit

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/config"
)

// UnlockLimiter guards the unlock endpoint per user.
type UnlockLimiter struct {
	window *SlidingWindow

	windowSize time.Duration
	maxCount   int
}

func NewUnlockLimiter(cfg config.Config, window *SlidingWindow) *UnlockLimiter {
	return &UnlockLimiter{
		window:     window,
		windowSize: time.Duration(cfg.UnlockRateWindowSeconds) * time.Second,
		maxCount:   cfg.UnlockRateMax,
	}
}

func (l *UnlockLimiter) AllowUser(ctx context.Context, userID snowflake.ID) (bool, error) {
	if l == nil || l.window == nil {
		return true, nil
	}
	return l.window.Allow(ctx, "unlock:user:"+userID.String(), l.windowSize, l.maxCount)
}
