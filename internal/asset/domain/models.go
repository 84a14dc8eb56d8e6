package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Asset is one verified surplus-funds record. The contact fields are the paid
// payload; they are only returned through a settled unlock.
type Asset struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	County        string       `gorm:"type:text;not null;index" json:"county"`
	State         string       `gorm:"type:text;not null" json:"state"`
	SaleDate      *time.Time   `gorm:"index" json:"sale_date"`
	SurplusAmount *float64     `json:"surplus_amount"`
	SourceCount   int          `gorm:"not null;default:0" json:"source_count"`
	LastVerified  *time.Time   `json:"last_verified"`

	OwnerName    string `gorm:"type:text" json:"-"`
	OwnerAddress string `gorm:"type:text" json:"-"`
	ParcelNumber string `gorm:"type:text" json:"-"`
	CaseNumber   string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}

// TableName sets the database table name.
func (Asset) TableName() string { return "assets" }

// Payload is the unlocked view of an asset.
type Payload struct {
	AssetID      snowflake.ID `json:"asset_id"`
	County       string       `json:"county"`
	State        string       `json:"state"`
	OwnerName    string       `json:"owner_name"`
	OwnerAddress string       `json:"owner_address"`
	ParcelNumber string       `json:"parcel_number"`
	CaseNumber   string       `json:"case_number"`
}

func (a Asset) UnlockPayload() Payload {
	return Payload{
		AssetID:      a.ID,
		County:       a.County,
		State:        a.State,
		OwnerName:    a.OwnerName,
		OwnerAddress: a.OwnerAddress,
		ParcelNumber: a.ParcelNumber,
		CaseNumber:   a.CaseNumber,
	}
}
