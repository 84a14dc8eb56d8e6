package adapter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/claimlens/claimlens/internal/config"
	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// optionally prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

// Adapter verifies and parses processor webhooks. One processor, one shared
// secret; rotation means re-deploying with the new env value.
type Adapter struct {
	secret string
}

func New(cfg config.Config) *Adapter {
	return &Adapter{secret: strings.TrimSpace(cfg.PaymentWebhookSecret)}
}

func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	if a.secret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type wireEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    wireEventData `json:"data"`
}

type wireEventData struct {
	UserID    string `json:"user_id"`
	Credits   int64  `json:"credits"`
	Tier      string `json:"tier"`
	ExpiresAt int64  `json:"expires_at"`
}

func (a *Adapter) Parse(payload []byte) (*paymentdomain.ExternalEvent, error) {
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}
	var event wireEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventType := strings.TrimSpace(event.Type)
	switch eventType {
	case paymentdomain.EventTypeSubscriptionRenewed,
		paymentdomain.EventTypeCreditPackPurchased,
		paymentdomain.EventTypeTierChanged:
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(event.Data.UserID))
	if err != nil || userID == 0 {
		return nil, paymentdomain.ErrInvalidUserRef
	}

	var expiresAt *time.Time
	if event.Data.ExpiresAt > 0 {
		t := time.Unix(event.Data.ExpiresAt, 0).UTC()
		expiresAt = &t
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}

	return &paymentdomain.ExternalEvent{
		EventID:    strings.TrimSpace(event.ID),
		Type:       eventType,
		UserID:     userID,
		Credits:    event.Data.Credits,
		Tier:       strings.TrimSpace(event.Data.Tier),
		ExpiresAt:  expiresAt,
		OccurredAt: occurredAt,
		RawPayload: payload,
	}, nil
}
