package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, user_id, source, qty_total, qty_remaining, purchased_at,
			expires_at, external_event_id, tier_at_purchase, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_event_id) DO NOTHING`,
		entry.ID,
		entry.UserID,
		string(entry.Source),
		entry.QtyTotal,
		entry.QtyRemaining,
		entry.PurchasedAt.UTC(),
		entry.ExpiresAt,
		entry.ExternalEventID,
		entry.TierAtPurchase,
		entry.CreatedAt.UTC(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByExternalEventID(ctx context.Context, db *gorm.DB, eventID string) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("external_event_id = ?", eventID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) SpendableEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) ([]domain.LedgerEntry, error) {
	stmt := db.WithContext(ctx).
		Where("user_id = ? AND qty_remaining > 0", userID).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		Order("CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END, expires_at asc, purchased_at asc, id asc")

	// sqlite has no row locks; its single-writer model covers the same ground.
	if db.Dialector.Name() != "sqlite" {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var entries []domain.LedgerEntry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) DebitEntry(ctx context.Context, db *gorm.DB, entryID snowflake.ID, qty int64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET qty_remaining = qty_remaining - ?
		 WHERE id = ? AND qty_remaining >= ?`,
		qty, entryID, qty,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentDebit
	}
	return nil
}

func (r *repo) SumLive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (int64, int64, error) {
	type row struct {
		Source    domain.GrantSource
		Remaining int64
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Select("source, SUM(qty_remaining) AS remaining").
		Where("user_id = ? AND qty_remaining > 0", userID).
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	var subscription, purchased int64
	for _, r := range rows {
		switch r.Source.Category() {
		case domain.CategorySubscription:
			subscription += r.Remaining
		case domain.CategoryPurchased:
			purchased += r.Remaining
		}
	}
	return subscription, purchased, nil
}

func (r *repo) UpsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (user_id, subscription_credits, purchased_credits, tier, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			subscription_credits = excluded.subscription_credits,
			purchased_credits = excluded.purchased_credits,
			tier = excluded.tier,
			updated_at = excluded.updated_at`,
		wallet.UserID,
		wallet.SubscriptionCredits,
		wallet.PurchasedCredits,
		wallet.Tier,
		wallet.UpdatedAt.UTC(),
	).Error
}

func (r *repo) GetWallet(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at desc, id desc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
