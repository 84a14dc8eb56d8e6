package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	"github.com/claimlens/claimlens/internal/clock"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	obsmetrics "github.com/claimlens/claimlens/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Grant(ctx context.Context, req ledgerdomain.GrantRequest) (ledgerdomain.LedgerEntry, bool, error) {
	var (
		entry   ledgerdomain.LedgerEntry
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, created, txErr = s.GrantTx(ctx, tx, req)
		return txErr
	})
	if err != nil {
		return ledgerdomain.LedgerEntry{}, false, err
	}
	if created && s.obsMetrics != nil {
		s.obsMetrics.RecordGrant(string(req.Source))
	}
	return entry, created, nil
}

func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.GrantRequest) (ledgerdomain.LedgerEntry, bool, error) {
	if req.UserID == 0 {
		return ledgerdomain.LedgerEntry{}, false, ledgerdomain.ErrInvalidUser
	}
	if req.Qty <= 0 {
		return ledgerdomain.LedgerEntry{}, false, ledgerdomain.ErrInvalidQty
	}
	if !req.Source.Valid() {
		return ledgerdomain.LedgerEntry{}, false, ledgerdomain.ErrInvalidSource
	}
	// Free grants always expire.
	if req.Source == ledgerdomain.GrantSourceStarter && req.ExpiresAt == nil {
		return ledgerdomain.LedgerEntry{}, false, ledgerdomain.ErrStarterExpiryRequired
	}

	now := s.clock.Now()
	entry := ledgerdomain.LedgerEntry{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Source:          req.Source,
		QtyTotal:        req.Qty,
		QtyRemaining:    req.Qty,
		PurchasedAt:     now,
		ExpiresAt:       req.ExpiresAt,
		ExternalEventID: normalizeEventID(req.ExternalEventID),
		TierAtPurchase:  req.Tier,
		CreatedAt:       now,
	}

	created, err := s.repo.InsertEntry(ctx, tx, &entry)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, false, err
	}
	if !created {
		// Replayed external event: hand back the original grant untouched.
		existing, err := s.repo.FindByExternalEventID(ctx, tx, *entry.ExternalEventID)
		if err != nil {
			return ledgerdomain.LedgerEntry{}, false, err
		}
		return *existing, false, nil
	}

	wallet, err := s.RecomputeWalletTx(ctx, tx, req.UserID, now)
	if err != nil {
		return ledgerdomain.LedgerEntry{}, false, err
	}
	if req.Tier != "" && req.Tier != wallet.Tier {
		wallet.Tier = req.Tier
		if err := s.repo.UpsertWallet(ctx, tx, &wallet); err != nil {
			return ledgerdomain.LedgerEntry{}, false, err
		}
	}

	entryID := entry.ID.String()
	metadata := map[string]any{
		"source":    string(req.Source),
		"qty":       req.Qty,
		"ledger_id": entryID,
	}
	if entry.ExternalEventID != nil {
		metadata["external_event_id"] = *entry.ExternalEventID
	}
	if err := s.auditSvc.RecordTx(ctx, tx, "", nil, "ledger.grant", "ledger_entry", &entryID, metadata); err != nil {
		return ledgerdomain.LedgerEntry{}, false, err
	}

	return entry, true, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (ledgerdomain.Balance, error) {
	if userID == 0 {
		return ledgerdomain.Balance{}, ledgerdomain.ErrInvalidUser
	}
	wallet, err := s.repo.GetWallet(ctx, s.db, userID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	if wallet == nil {
		return ledgerdomain.Balance{}, nil
	}
	return ledgerdomain.Balance{
		SubscriptionCredits: wallet.SubscriptionCredits,
		PurchasedCredits:    wallet.PurchasedCredits,
		Tier:                wallet.Tier,
	}, nil
}

func (s *Service) ListEntries(ctx context.Context, userID snowflake.ID) ([]ledgerdomain.LedgerEntry, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) RecomputeWalletTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) (ledgerdomain.Wallet, error) {
	subscription, purchased, err := s.repo.SumLive(ctx, tx, userID, now)
	if err != nil {
		return ledgerdomain.Wallet{}, err
	}

	tier := ""
	if existing, err := s.repo.GetWallet(ctx, tx, userID); err != nil {
		return ledgerdomain.Wallet{}, err
	} else if existing != nil {
		tier = existing.Tier
	}

	wallet := ledgerdomain.Wallet{
		UserID:              userID,
		SubscriptionCredits: subscription,
		PurchasedCredits:    purchased,
		Tier:                tier,
		UpdatedAt:           now,
	}
	if err := s.repo.UpsertWallet(ctx, tx, &wallet); err != nil {
		return ledgerdomain.Wallet{}, err
	}
	return wallet, nil
}

func normalizeEventID(eventID *string) *string {
	if eventID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*eventID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
