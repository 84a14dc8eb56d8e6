package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RateLimitSample is one timestamped hit against a bucket. Samples are
// ephemeral; anything older than the trailing window is pruned opportunistically.
type RateLimitSample struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Bucket    string       `gorm:"type:text;not null;index:ix_rate_limit_samples_bucket"`
	SampledAt time.Time    `gorm:"not null;index:ix_rate_limit_samples_bucket"`
}

// TableName sets the database table name.
func (RateLimitSample) TableName() string { return "rate_limit_samples" }

// SlidingWindow counts raw timestamps per bucket over a trailing window. The
// count-and-insert is a single guarded statement: no separate read a racing
// write can invalidate. Under read-committed isolation, racing guards that
// snapshot before each other's insert commits can still each pass, so the
// limit is approximate — over-admission is bounded by the number of in-flight
// inserts for the bucket, and the next window sees every committed sample.
type SlidingWindow struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewSlidingWindow(db *gorm.DB, log *zap.Logger, genID *snowflake.Node, clk clock.Clock) *SlidingWindow {
	return &SlidingWindow{
		db:    db,
		log:   log.Named("ratelimit"),
		genID: genID,
		clock: clk,
	}
}

// Allow records a hit for bucket and reports whether it fits within maxCount
// hits per window. A denied hit is not recorded.
func (w *SlidingWindow) Allow(ctx context.Context, bucket string, window time.Duration, maxCount int) (bool, error) {
	if bucket == "" {
		return false, errors.New("rate limit bucket is empty")
	}
	if window <= 0 || maxCount <= 0 {
		return false, errors.New("rate limit window and max must be positive")
	}

	now := w.clock.Now()
	cutoff := now.Add(-window)

	result := w.db.WithContext(ctx).Exec(
		`INSERT INTO rate_limit_samples (id, bucket, sampled_at)
		 SELECT ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM rate_limit_samples WHERE bucket = ? AND sampled_at > ?) < ?`,
		w.genID.Generate(), bucket, now, bucket, cutoff, maxCount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	allowed := result.RowsAffected > 0

	w.prune(ctx, bucket, cutoff)
	return allowed, nil
}

func (w *SlidingWindow) prune(ctx context.Context, bucket string, cutoff time.Time) {
	err := w.db.WithContext(ctx).
		Where("bucket = ? AND sampled_at <= ?", bucket, cutoff).
		Delete(&RateLimitSample{}).Error
	if err != nil {
		w.log.Debug("rate limit prune failed", zap.String("bucket", bucket), zap.Error(err))
	}
}
