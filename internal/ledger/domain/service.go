package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type GrantRequest struct {
	UserID          snowflake.ID
	Source          GrantSource
	Qty             int64
	ExpiresAt       *time.Time
	ExternalEventID *string
	Tier            string
}

type Balance struct {
	SubscriptionCredits int64  `json:"subscription_credits"`
	PurchasedCredits    int64  `json:"purchased_credits"`
	Tier                string `json:"tier"`
}

// Service is the ledger store plus the wallet read model.
type Service interface {
	// Grant appends a credit batch. With an external event id it is
	// idempotent: a replay returns the existing entry and created=false.
	Grant(ctx context.Context, req GrantRequest) (LedgerEntry, bool, error)
	// GrantTx is Grant inside the caller's transaction.
	GrantTx(ctx context.Context, tx *gorm.DB, req GrantRequest) (LedgerEntry, bool, error)
	// Balance serves the wallet aggregate.
	Balance(ctx context.Context, userID snowflake.ID) (Balance, error)
	// ListEntries returns the user's grants, newest first, for ops tooling.
	ListEntries(ctx context.Context, userID snowflake.ID) ([]LedgerEntry, error)
	// RecomputeWalletTx rebuilds the wallet row from live entries inside tx.
	RecomputeWalletTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) (Wallet, error)
}

// Repository is the row-level access used by the ledger and unlock services.
type Repository interface {
	// InsertEntry inserts idempotently on external_event_id; created=false
	// means the event id was already present.
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	FindByExternalEventID(ctx context.Context, db *gorm.DB, eventID string) (*LedgerEntry, error)
	// SpendableEntries returns live entries locked for update, ordered
	// soonest-to-expire first, then purchase time, then id.
	SpendableEntries(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) ([]LedgerEntry, error)
	// DebitEntry decrements qty_remaining by qty, guarded so the remainder
	// can never go negative even under a missed lock.
	DebitEntry(ctx context.Context, db *gorm.DB, entryID snowflake.ID, qty int64) error
	SumLive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (subscription int64, purchased int64, err error)
	UpsertWallet(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	GetWallet(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]LedgerEntry, error)
}

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidQty            = errors.New("invalid_qty")
	ErrInvalidSource         = errors.New("invalid_source")
	ErrStarterExpiryRequired = errors.New("starter_expiry_required")
	ErrEntryNotFound         = errors.New("entry_not_found")
	ErrConcurrentDebit       = errors.New("concurrent_debit")
)
