package domain

import (
	"context"
	"time"
)

// ScoreInputs are the raw asset attributes the scoring engine consumes. They
// come from the asset store, never from client input.
type ScoreInputs struct {
	SurplusAmount *float64
	SourceCount   int
	LastVerified  *time.Time
	CountyUnlocks int // unlocks in the asset's county over the trailing 30 days
}

// CompositeScore is the 3-dimensional quality score, each axis in [0,100].
// Overall blends the axes with the policy weights for ranking surfaces;
// credit cost is a function of decayed opportunity alone.
type CompositeScore struct {
	Opportunity float64 `json:"opportunity"`
	Confidence  float64 `json:"confidence"`
	Velocity    float64 `json:"velocity"`
	Overall     float64 `json:"overall"`
}

// Quote is a priced score: opportunity after freshness decay, and the credit
// cost band it lands in. Fallback marks quotes priced at the floor because
// inputs were missing; settlement records that in the audit trail.
type Quote struct {
	Score       CompositeScore `json:"score"`
	DecayFactor float64        `json:"decay_factor"`
	Adjusted    float64        `json:"adjusted_opportunity"`
	Cost        int64          `json:"cost"`
	Fallback    bool           `json:"fallback"`
}

// Service computes scores and credit costs. All methods are deterministic for
// a given input and policy config.
type Service interface {
	Score(ctx context.Context, inputs ScoreInputs, now time.Time) (CompositeScore, bool)
	FreshnessDecay(lastVerified time.Time, now time.Time) float64
	CreditCost(adjustedOpportunity float64) int64
	Quote(ctx context.Context, inputs ScoreInputs, now time.Time) Quote
}

// Cost bands, inclusive on the lower bound, evaluated after decay.
const (
	CostBandPremium  = 85.0 // >= 85 -> 3 credits
	CostBandStandard = 70.0 // >= 70 -> 2 credits
)
