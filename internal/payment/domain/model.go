package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the dedup row for processor webhooks. The unique event_id
// index is what makes ApplyEvent exactly-once: the row is inserted in the same
// transaction as the grant it produces.
type EventRecord struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID     string         `json:"event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_event_id"`
	EventType   string         `json:"event_type" gorm:"type:text;not null"`
	UserID      snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeSubscriptionRenewed = "subscription.renewed"
	EventTypeCreditPackPurchased = "credit_pack.purchased"
	EventTypeTierChanged         = "subscription.tier_changed"
)

// ExternalEvent is the canonical processor event parsed by the adapter.
type ExternalEvent struct {
	EventID    string
	Type       string
	UserID     snowflake.ID
	Credits    int64
	Tier       string
	ExpiresAt  *time.Time
	OccurredAt time.Time
	RawPayload []byte
}

// ApplyOutcome distinguishes first delivery from replay. Both map to HTTP 200
// on the webhook surface so the processor stops retrying.
type ApplyOutcome string

const (
	OutcomeApplied        ApplyOutcome = "applied"
	OutcomeAlreadyApplied ApplyOutcome = "already_applied"
)

type CheckoutRequest struct {
	UserID  snowflake.ID `json:"user_id"`
	PackID  string       `json:"pack_id"`
	Credits int64        `json:"credits"`
}

type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type Service interface {
	// IngestWebhook verifies the signature, parses the payload and applies it.
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (ApplyOutcome, error)
	// ApplyEvent records the event id atomically with its ledger effect.
	// Replays return OutcomeAlreadyApplied with zero side effects.
	ApplyEvent(ctx context.Context, event *ExternalEvent) (ApplyOutcome, error)
	// CreateCheckout opens a purchase session with the processor.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

type Repository interface {
	// InsertEvent inserts the dedup row; created=false means the event id
	// already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, eventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrEventIgnored        = errors.New("event_ignored")
	ErrInvalidUserRef      = errors.New("invalid_user_ref")
	ErrCheckoutUnavailable = errors.New("checkout_unavailable")
)
