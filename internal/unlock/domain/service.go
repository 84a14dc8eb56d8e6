package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	"github.com/claimlens/claimlens/internal/authcontext"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"gorm.io/gorm"
)

// UnlockResult is the settled outcome. CreditsSpent is what THIS call debited:
// zero on an idempotent re-unlock, where Record carries the original spend.
type UnlockResult struct {
	Record          UnlockRecord        `json:"record"`
	Payload         assetdomain.Payload `json:"payload"`
	CreditsSpent    int64               `json:"credits_spent"`
	AlreadyUnlocked bool                `json:"already_unlocked"`
	Quote           pricingdomain.Quote `json:"quote"`
}

// Service is the unlock settlement engine.
type Service interface {
	Unlock(ctx context.Context, identity authcontext.Identity, assetID snowflake.ID) (UnlockResult, error)
	// Journal returns the spend journal for one unlock, for the audit surface.
	Journal(ctx context.Context, unlockID snowflake.ID) ([]SpendJournalEntry, error)
	GetByID(ctx context.Context, unlockID snowflake.ID) (UnlockRecord, error)
}

type Repository interface {
	FindByUserAsset(ctx context.Context, db *gorm.DB, userID, assetID snowflake.ID) (*UnlockRecord, error)
	// InsertRecord inserts idempotently on (user_id, asset_id); created=false
	// means another settlement won the race.
	InsertRecord(ctx context.Context, db *gorm.DB, record *UnlockRecord) (bool, error)
	InsertJournal(ctx context.Context, db *gorm.DB, entry *SpendJournalEntry) error
	JournalByUnlock(ctx context.Context, db *gorm.DB, unlockID snowflake.ID) ([]SpendJournalEntry, error)
	FindByID(ctx context.Context, db *gorm.DB, unlockID snowflake.ID) (*UnlockRecord, error)
}

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrUnlockNotFound      = errors.New("unlock_not_found")
)
