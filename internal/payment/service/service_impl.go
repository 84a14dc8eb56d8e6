package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	"github.com/claimlens/claimlens/internal/clock"
	"github.com/claimlens/claimlens/internal/config"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	obsmetrics "github.com/claimlens/claimlens/internal/observability/metrics"
	"github.com/claimlens/claimlens/internal/payment/adapter"
	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Adapter    *adapter.Adapter
	Repo       paymentdomain.Repository
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	adapter    *adapter.Adapter
	repo       paymentdomain.Repository
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics

	checkoutURL string
	httpClient  *http.Client
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		adapter:     p.Adapter,
		repo:        p.Repo,
		ledgerSvc:   p.LedgerSvc,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		checkoutURL: strings.TrimSpace(p.Cfg.PaymentCheckoutURL),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) (paymentdomain.ApplyOutcome, error) {
	if err := s.adapter.Verify(payload, headers); err != nil {
		s.recordEvent("rejected_signature")
		return "", err
	}

	event, err := s.adapter.Parse(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.recordEvent("ignored")
			return paymentdomain.OutcomeAlreadyApplied, nil
		}
		s.recordEvent("rejected_payload")
		return "", err
	}

	return s.ApplyEvent(ctx, event)
}

func (s *Service) ApplyEvent(ctx context.Context, event *paymentdomain.ExternalEvent) (paymentdomain.ApplyOutcome, error) {
	if err := validateEvent(event); err != nil {
		return "", err
	}

	now := s.clock.Now()
	record := paymentdomain.EventRecord{
		ID:         s.genID.Generate(),
		EventID:    event.EventID,
		EventType:  event.Type,
		UserID:     event.UserID,
		Payload:    datatypes.JSON(event.RawPayload),
		ReceivedAt: now,
	}
	if len(record.Payload) == 0 {
		record.Payload = datatypes.JSON([]byte("{}"))
	}

	outcome := paymentdomain.OutcomeApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, &record)
		if err != nil {
			return err
		}
		stored := &record
		if !inserted {
			stored, err = s.repo.FindEvent(ctx, tx, event.EventID)
			if err != nil {
				return err
			}
			if stored == nil {
				return paymentdomain.ErrInvalidEvent
			}
			if stored.ProcessedAt != nil {
				outcome = paymentdomain.OutcomeAlreadyApplied
				return nil
			}
			// Recorded but never marked processed: a crash landed between
			// insert and effect on a previous delivery. The ledger grant
			// below is itself idempotent on the event id, so retrying is
			// safe.
		}

		if err := s.applyEffect(ctx, tx, event, now); err != nil {
			return err
		}
		return s.repo.MarkProcessed(ctx, tx, stored.ID, now)
	})
	if err != nil {
		s.recordEvent("failed")
		return "", err
	}

	s.recordEvent(string(outcome))
	if outcome == paymentdomain.OutcomeApplied {
		s.log.Info("payment event applied",
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.Type),
			zap.String("user_id", event.UserID.String()),
		)
	}
	return outcome, nil
}

func (s *Service) applyEffect(ctx context.Context, tx *gorm.DB, event *paymentdomain.ExternalEvent, now time.Time) error {
	switch event.Type {
	case paymentdomain.EventTypeSubscriptionRenewed:
		eventID := event.EventID
		_, _, err := s.ledgerSvc.GrantTx(ctx, tx, ledgerdomain.GrantRequest{
			UserID:          event.UserID,
			Source:          ledgerdomain.GrantSourceSubscription,
			Qty:             event.Credits,
			ExpiresAt:       event.ExpiresAt,
			ExternalEventID: &eventID,
			Tier:            event.Tier,
		})
		return err
	case paymentdomain.EventTypeCreditPackPurchased:
		eventID := event.EventID
		// Pack credits always expire; the processor payload sets the date,
		// and a payload without one gets the default shelf life. A grant
		// must never bounce a paid purchase back to the processor.
		expiresAt := event.ExpiresAt
		if expiresAt == nil {
			v := now.AddDate(1, 0, 0)
			expiresAt = &v
		}
		_, _, err := s.ledgerSvc.GrantTx(ctx, tx, ledgerdomain.GrantRequest{
			UserID:          event.UserID,
			Source:          ledgerdomain.GrantSourceStarter,
			Qty:             event.Credits,
			ExpiresAt:       expiresAt,
			ExternalEventID: &eventID,
			Tier:            event.Tier,
		})
		return err
	case paymentdomain.EventTypeTierChanged:
		return s.applyTierChange(ctx, tx, event, now)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) applyTierChange(ctx context.Context, tx *gorm.DB, event *paymentdomain.ExternalEvent, now time.Time) error {
	if event.Tier == "" {
		return paymentdomain.ErrInvalidEvent
	}

	// Recompute first so the wallet row exists even for a user with no
	// grants yet.
	if _, err := s.ledgerSvc.RecomputeWalletTx(ctx, tx, event.UserID, now); err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Exec(
		`UPDATE wallets SET tier = ?, updated_at = ? WHERE user_id = ?`,
		event.Tier,
		now,
		event.UserID,
	).Error; err != nil {
		return err
	}

	userID := event.UserID.String()
	return s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeSystem, nil, "wallet.tier_changed", "wallet", &userID, map[string]any{
		"tier":     event.Tier,
		"event_id": event.EventID,
	})
}

func (s *Service) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	if req.UserID == 0 {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrInvalidUserRef
	}
	if s.checkoutURL == "" {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrCheckoutUnavailable
	}

	body, err := json.Marshal(map[string]any{
		"user_id": req.UserID.String(),
		"pack_id": req.PackID,
		"credits": req.Credits,
	})
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.checkoutURL, bytes.NewReader(body))
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return paymentdomain.CheckoutSession{}, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warn("processor checkout rejected", zap.Int("status", resp.StatusCode))
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrCheckoutUnavailable
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	var session paymentdomain.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrCheckoutUnavailable
	}
	if session.URL == "" {
		return paymentdomain.CheckoutSession{}, paymentdomain.ErrCheckoutUnavailable
	}
	return session, nil
}

func (s *Service) recordEvent(outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(outcome)
	}
}

func validateEvent(event *paymentdomain.ExternalEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.UserID == 0 {
		return paymentdomain.ErrInvalidUserRef
	}
	switch event.Type {
	case paymentdomain.EventTypeSubscriptionRenewed, paymentdomain.EventTypeCreditPackPurchased:
		if event.Credits <= 0 {
			return paymentdomain.ErrInvalidEvent
		}
	case paymentdomain.EventTypeTierChanged:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
