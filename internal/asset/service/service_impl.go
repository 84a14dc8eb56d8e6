package service

import (
	"context"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	"github.com/claimlens/claimlens/internal/authcontext"
	"github.com/claimlens/claimlens/internal/config"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    assetdomain.Repository
	Pricing *config.PricingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    assetdomain.Repository
	pricing *config.PricingConfigHolder
}

func NewService(p Params) assetdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("asset.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		pricing: p.Pricing,
	}
}

func (s *Service) GetByID(ctx context.Context, assetID snowflake.ID) (assetdomain.Asset, error) {
	asset, err := s.repo.FindByID(ctx, s.db, assetID)
	if err != nil {
		return assetdomain.Asset{}, err
	}
	return *asset, nil
}

func (s *Service) StateOf(asset assetdomain.Asset, now time.Time) assetdomain.EligibilityState {
	cfg := s.pricing.Get()
	return assetdomain.DeriveState(asset.SaleDate, now, cfg.RestrictedWindowDays, cfg.ExpiryDays)
}

func (s *Service) CheckEligibility(asset assetdomain.Asset, identity authcontext.Identity, now time.Time) error {
	switch s.StateOf(asset, now) {
	case assetdomain.StateExpired:
		return assetdomain.ErrAssetExpired
	case assetdomain.StateUnknown:
		return assetdomain.ErrAssetNotUnlockable
	case assetdomain.StateRestricted:
		if !identity.ContactVerified {
			return assetdomain.ErrContactUnverified
		}
		cfg := s.pricing.Get()
		if !identity.VerifiedProfessional || !slices.Contains(cfg.QualifyingTiers, identity.Tier) {
			return assetdomain.ErrRestrictionNotMet
		}
		return nil
	case assetdomain.StateActionable:
		if !identity.ContactVerified {
			return assetdomain.ErrContactUnverified
		}
		return nil
	default:
		return assetdomain.ErrAssetNotUnlockable
	}
}

func (s *Service) ScoreInputs(ctx context.Context, asset assetdomain.Asset, now time.Time) (pricingdomain.ScoreInputs, error) {
	countyUnlocks, err := s.repo.CountCountyUnlocks(ctx, s.db, asset.County, now.AddDate(0, 0, -30))
	if err != nil {
		return pricingdomain.ScoreInputs{}, err
	}
	return pricingdomain.ScoreInputs{
		SurplusAmount: asset.SurplusAmount,
		SourceCount:   asset.SourceCount,
		LastVerified:  asset.LastVerified,
		CountyUnlocks: countyUnlocks,
	}, nil
}

func (s *Service) Create(ctx context.Context, asset assetdomain.Asset) (assetdomain.Asset, error) {
	if asset.ID == 0 {
		asset.ID = s.genID.Generate()
	}
	now := time.Now().UTC()
	asset.CreatedAt = now
	asset.UpdatedAt = now
	if err := s.repo.Insert(ctx, s.db, &asset); err != nil {
		return assetdomain.Asset{}, err
	}
	return asset, nil
}
