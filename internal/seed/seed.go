package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
)

// EnsureDevAssets seeds a small set of surplus records so a fresh local
// install has something to unlock. It is a no-op once any asset exists.
func EnsureDevAssets(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&assetdomain.Asset{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, asset := range devAssets(node, now) {
			if err := tx.WithContext(ctx).Create(&asset).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureStarterGrant gives a user a starter credit batch if they have no
// ledger entries yet. Used by local bootstrap, never in production.
func EnsureStarterGrant(db *gorm.DB, userID snowflake.ID, qty int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if userID == 0 || qty <= 0 {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).
			Model(&ledgerdomain.LedgerEntry{}).
			Where("user_id = ?", userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		expires := now.Add(90 * 24 * time.Hour)
		entry := ledgerdomain.LedgerEntry{
			ID:           node.Generate(),
			UserID:       userID,
			Source:       ledgerdomain.GrantSourceStarter,
			QtyTotal:     qty,
			QtyRemaining: qty,
			PurchasedAt:  now,
			ExpiresAt:    &expires,
			CreatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			return err
		}

		wallet := ledgerdomain.Wallet{
			UserID:           userID,
			PurchasedCredits: qty,
			UpdatedAt:        now,
		}
		return tx.WithContext(ctx).Save(&wallet).Error
	})
}

func devAssets(node *snowflake.Node, now time.Time) []assetdomain.Asset {
	daysAgo := func(d int) *time.Time {
		t := now.Add(-time.Duration(d) * 24 * time.Hour)
		return &t
	}
	amount := func(v float64) *float64 { return &v }

	return []assetdomain.Asset{
		{
			ID:            node.Generate(),
			County:        "Maricopa",
			State:         "AZ",
			SaleDate:      daysAgo(120),
			SurplusAmount: amount(42500),
			SourceCount:   3,
			LastVerified:  daysAgo(14),
			OwnerName:     "R. Alvarez",
			OwnerAddress:  "1180 W Glendale Ave, Phoenix, AZ",
			ParcelNumber:  "117-32-044",
			CaseNumber:    "CV2025-091234",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            node.Generate(),
			County:        "Harris",
			State:         "TX",
			SaleDate:      daysAgo(200),
			SurplusAmount: amount(18750),
			SourceCount:   2,
			LastVerified:  daysAgo(45),
			OwnerName:     "D. Okafor",
			OwnerAddress:  "7733 Bellfort St, Houston, TX",
			ParcelNumber:  "041-188-000-0012",
			CaseNumber:    "2025-08812",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            node.Generate(),
			County:        "Clark",
			State:         "NV",
			SaleDate:      daysAgo(30),
			SurplusAmount: amount(96200),
			SourceCount:   5,
			LastVerified:  daysAgo(3),
			OwnerName:     "M. Tran",
			OwnerAddress:  "4410 E Charleston Blvd, Las Vegas, NV",
			ParcelNumber:  "140-29-810-015",
			CaseNumber:    "A-25-91442-C",
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:          node.Generate(),
			County:      "Wayne",
			State:       "MI",
			SaleDate:    daysAgo(500),
			SourceCount: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}
