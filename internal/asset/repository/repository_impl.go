package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/asset/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, assetID snowflake.ID) (*domain.Asset, error) {
	var asset domain.Asset
	err := db.WithContext(ctx).Where("id = ?", assetID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, asset *domain.Asset) error {
	return db.WithContext(ctx).Create(asset).Error
}

func (r *repo) CountCountyUnlocks(ctx context.Context, db *gorm.DB, county string, since time.Time) (int, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("unlock_records").
		Joins("JOIN assets ON assets.id = unlock_records.asset_id").
		Where("assets.county = ? AND unlock_records.unlocked_at >= ?", county, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
