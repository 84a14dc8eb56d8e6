package service

import (
	"context"
	"math"
	"time"

	"github.com/claimlens/claimlens/internal/config"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Pricing *config.PricingConfigHolder
}

type Service struct {
	log     *zap.Logger
	pricing *config.PricingConfigHolder
}

func NewService(p Params) pricingdomain.Service {
	return &Service{
		log:     p.Log.Named("pricing.service"),
		pricing: p.Pricing,
	}
}

// Score computes the composite quality score. The second return is false when
// inputs are too thin to score; callers fall back to the floor tier instead of
// failing.
func (s *Service) Score(ctx context.Context, inputs pricingdomain.ScoreInputs, now time.Time) (pricingdomain.CompositeScore, bool) {
	_ = ctx
	cfg := s.pricing.Get()

	if inputs.SurplusAmount == nil || *inputs.SurplusAmount <= 0 || inputs.LastVerified == nil {
		return pricingdomain.CompositeScore{}, false
	}

	// Opportunity saturates around the population median: a surplus at the
	// median scores 50, larger surpluses approach 100.
	surplus := *inputs.SurplusAmount
	opportunity := clamp(100*surplus/(surplus+cfg.SurplusMedian), 0, 100)

	// Confidence blends corroborating source count with verification recency.
	sourceRatio := float64(inputs.SourceCount) / float64(cfg.MaxSourceCount)
	if sourceRatio > 1 {
		sourceRatio = 1
	}
	recency := s.FreshnessDecay(*inputs.LastVerified, now)
	confidence := clamp(70*sourceRatio+30*recency, 0, 100)

	// Velocity saturates with county unlock turnover; the half-life config is
	// the unlock count that scores 50.
	halfLife := float64(cfg.VelocityHalfLife)
	velocity := clamp(100*float64(inputs.CountyUnlocks)/(float64(inputs.CountyUnlocks)+halfLife), 0, 100)

	// Policy weights blend the axes into the ranking score: surplus drives
	// opportunity, sources drive confidence, turnover drives velocity. The
	// holder validates the weight sum is positive on every reload.
	weightSum := cfg.SurplusWeight + cfg.SourceWeight + cfg.RecencyWeight
	overall := clamp(
		(cfg.SurplusWeight*opportunity+cfg.SourceWeight*confidence+cfg.RecencyWeight*velocity)/weightSum,
		0, 100,
	)

	return pricingdomain.CompositeScore{
		Opportunity: round2(opportunity),
		Confidence:  round2(confidence),
		Velocity:    round2(velocity),
		Overall:     round2(overall),
	}, true
}

// FreshnessDecay is clamp(1 - days/365, 0, 1): 1.0 at zero days, ~0.5 at 180
// days, 0.0 at and beyond a year.
func (s *Service) FreshnessDecay(lastVerified time.Time, now time.Time) float64 {
	days := now.Sub(lastVerified).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clamp(1-days/365, 0, 1)
}

// CreditCost maps an adjusted opportunity score to its band. Bounds are
// inclusive on the lower edge.
func (s *Service) CreditCost(adjustedOpportunity float64) int64 {
	switch {
	case adjustedOpportunity >= pricingdomain.CostBandPremium:
		return 3
	case adjustedOpportunity >= pricingdomain.CostBandStandard:
		return 2
	default:
		return 1
	}
}

func (s *Service) Quote(ctx context.Context, inputs pricingdomain.ScoreInputs, now time.Time) pricingdomain.Quote {
	score, ok := s.Score(ctx, inputs, now)
	if !ok {
		s.log.Debug("score inputs incomplete, pricing at floor")
		return pricingdomain.Quote{Cost: 1, Fallback: true}
	}

	decay := s.FreshnessDecay(*inputs.LastVerified, now)
	adjusted := round2(score.Opportunity * decay)
	return pricingdomain.Quote{
		Score:       score,
		DecayFactor: decay,
		Adjusted:    adjusted,
		Cost:        s.CreditCost(adjusted),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
