package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UnlockRecord is one settled unlock. The (user_id, asset_id) unique index is
// load-bearing: it is what makes concurrent unlocks of the same asset settle
// exactly once.
type UnlockRecord struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID `gorm:"not null;uniqueIndex:ux_unlock_user_asset,priority:1" json:"user_id"`
	AssetID      snowflake.ID `gorm:"not null;uniqueIndex:ux_unlock_user_asset,priority:2;index" json:"asset_id"`
	CreditsSpent int64        `gorm:"not null" json:"credits_spent"`
	UnlockedAt   time.Time    `gorm:"not null" json:"unlocked_at"`
	TierAtUnlock string       `gorm:"type:text;not null" json:"tier_at_unlock"`
}

// TableName sets the database table name.
func (UnlockRecord) TableName() string { return "unlock_records" }

// SpendJournalEntry records which ledger entry funded how much of an unlock.
// Per unlock, the journal rows sum to UnlockRecord.CreditsSpent.
type SpendJournalEntry struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	UnlockID        snowflake.ID `gorm:"not null;index" json:"unlock_id"`
	LedgerEntryID   snowflake.ID `gorm:"not null;index" json:"ledger_entry_id"`
	CreditsConsumed int64        `gorm:"not null" json:"credits_consumed"`
}

// TableName sets the database table name.
func (SpendJournalEntry) TableName() string { return "spend_journal_entries" }
