package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// GrantSource identifies where a credit batch came from. The set is closed;
// every decision point (FIFO ordering, expiry rules, wallet bucketing) handles
// all four variants.
type GrantSource string

const (
	GrantSourceSubscription GrantSource = "subscription"
	GrantSourceStarter      GrantSource = "starter"
	GrantSourceMigration    GrantSource = "migration"
	GrantSourceAdmin        GrantSource = "admin"
)

func (s GrantSource) Valid() bool {
	switch s {
	case GrantSourceSubscription, GrantSourceStarter, GrantSourceMigration, GrantSourceAdmin:
		return true
	default:
		return false
	}
}

// CreditCategory is the wallet bucket a grant source feeds.
type CreditCategory string

const (
	CategorySubscription CreditCategory = "subscription"
	CategoryPurchased    CreditCategory = "purchased"
)

func (s GrantSource) Category() CreditCategory {
	switch s {
	case GrantSourceSubscription:
		return CategorySubscription
	case GrantSourceStarter, GrantSourceMigration, GrantSourceAdmin:
		return CategoryPurchased
	default:
		return CategoryPurchased
	}
}

// LedgerEntry is one credit grant. Append-only except for QtyRemaining, which
// only the settlement engine decrements, inside a settlement transaction,
// monotonically toward zero.
type LedgerEntry struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID `gorm:"not null;index" json:"user_id"`
	Source          GrantSource  `gorm:"type:text;not null" json:"source"`
	QtyTotal        int64        `gorm:"not null" json:"qty_total"`
	QtyRemaining    int64        `gorm:"not null" json:"qty_remaining"`
	PurchasedAt     time.Time    `gorm:"not null" json:"purchased_at"`
	ExpiresAt       *time.Time   `gorm:"index" json:"expires_at"`
	ExternalEventID *string      `gorm:"type:text;uniqueIndex:ux_ledger_entries_external_event" json:"external_event_id,omitempty"`
	TierAtPurchase  string       `gorm:"type:text;not null" json:"tier_at_purchase"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// Live reports whether the entry can still fund an unlock at the given time.
func (e LedgerEntry) Live(now time.Time) bool {
	if e.QtyRemaining <= 0 {
		return false
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Wallet is the per-user read model over ledger entries. It is mutated only
// inside the same transaction as a ledger mutation and must always equal the
// sum of live entry remainders.
type Wallet struct {
	UserID              snowflake.ID `gorm:"primaryKey" json:"user_id"`
	SubscriptionCredits int64        `gorm:"not null;default:0" json:"subscription_credits"`
	PurchasedCredits    int64        `gorm:"not null;default:0" json:"purchased_credits"`
	Tier                string       `gorm:"type:text;not null;default:''" json:"tier"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

func (w Wallet) Total() int64 {
	return w.SubscriptionCredits + w.PurchasedCredits
}
