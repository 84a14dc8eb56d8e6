package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/authcontext"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"gorm.io/gorm"
)

// Service is the asset/record store surface the settlement engine consumes.
type Service interface {
	GetByID(ctx context.Context, assetID snowflake.ID) (Asset, error)
	// StateOf re-derives eligibility from stored dates at call time.
	StateOf(asset Asset, now time.Time) EligibilityState
	// CheckEligibility combines state with the caller's asserted identity.
	CheckEligibility(asset Asset, identity authcontext.Identity, now time.Time) error
	// ScoreInputs assembles the pricing engine's inputs for an asset.
	ScoreInputs(ctx context.Context, asset Asset, now time.Time) (pricingdomain.ScoreInputs, error)
	Create(ctx context.Context, asset Asset) (Asset, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, assetID snowflake.ID) (*Asset, error)
	Insert(ctx context.Context, db *gorm.DB, asset *Asset) error
	// CountCountyUnlocks counts unlock records in the asset's county since
	// the given time; feeds the velocity score.
	CountCountyUnlocks(ctx context.Context, db *gorm.DB, county string, since time.Time) (int, error)
}

var (
	ErrAssetNotFound      = errors.New("asset_not_found")
	ErrAssetExpired       = errors.New("asset_expired")
	ErrAssetNotUnlockable = errors.New("asset_not_unlockable")
	ErrRestrictionNotMet  = errors.New("restriction_not_met")
	ErrContactUnverified  = errors.New("contact_unverified")
)
