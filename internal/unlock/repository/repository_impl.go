package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/claimlens/claimlens/internal/unlock/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByUserAsset(ctx context.Context, db *gorm.DB, userID, assetID snowflake.ID) (*domain.UnlockRecord, error) {
	var record domain.UnlockRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND asset_id = ?", userID, assetID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.UnlockRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO unlock_records (
			id, user_id, asset_id, credits_spent, unlocked_at, tier_at_unlock
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, asset_id) DO NOTHING`,
		record.ID,
		record.UserID,
		record.AssetID,
		record.CreditsSpent,
		record.UnlockedAt.UTC(),
		record.TierAtUnlock,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertJournal(ctx context.Context, db *gorm.DB, entry *domain.SpendJournalEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO spend_journal_entries (
			id, unlock_id, ledger_entry_id, credits_consumed
		) VALUES (?, ?, ?, ?)`,
		entry.ID,
		entry.UnlockID,
		entry.LedgerEntryID,
		entry.CreditsConsumed,
	).Error
}

func (r *repo) JournalByUnlock(ctx context.Context, db *gorm.DB, unlockID snowflake.ID) ([]domain.SpendJournalEntry, error) {
	var entries []domain.SpendJournalEntry
	err := db.WithContext(ctx).
		Where("unlock_id = ?", unlockID).
		Order("id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, unlockID snowflake.ID) (*domain.UnlockRecord, error) {
	var record domain.UnlockRecord
	err := db.WithContext(ctx).Where("id = ?", unlockID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnlockNotFound
		}
		return nil, err
	}
	return &record, nil
}
