package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	"github.com/claimlens/claimlens/internal/authcontext"
	"github.com/claimlens/claimlens/internal/clock"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	obsmetrics "github.com/claimlens/claimlens/internal/observability/metrics"
	pricingdomain "github.com/claimlens/claimlens/internal/pricing/domain"
	"github.com/claimlens/claimlens/internal/ratelimit"
	unlockdomain "github.com/claimlens/claimlens/internal/unlock/domain"
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
	Repo       unlockdomain.Repository
	LedgerSvc  ledgerdomain.Service
	LedgerRepo ledgerdomain.Repository
	AssetSvc   assetdomain.Service
	PricingSvc pricingdomain.Service
	AuditSvc   auditdomain.Service
	SettleLock *ratelimit.SettleLock `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       unlockdomain.Repository
	ledgerSvc  ledgerdomain.Service
	ledgerRepo ledgerdomain.Repository
	assetSvc   assetdomain.Service
	pricingSvc pricingdomain.Service
	auditSvc   auditdomain.Service
	settleLock *ratelimit.SettleLock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) unlockdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("unlock.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		ledgerRepo: p.LedgerRepo,
		assetSvc:   p.AssetSvc,
		pricingSvc: p.PricingSvc,
		auditSvc:   p.AuditSvc,
		settleLock: p.SettleLock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Unlock(ctx context.Context, identity authcontext.Identity, assetID snowflake.ID) (unlockdomain.UnlockResult, error) {
	if identity.UserID == 0 {
		return unlockdomain.UnlockResult{}, ledgerdomain.ErrInvalidUser
	}

	asset, err := s.assetSvc.GetByID(ctx, assetID)
	if err != nil {
		return unlockdomain.UnlockResult{}, err
	}

	// Fast path: an existing record settles the call without touching the
	// ledger, regardless of the asset's current state.
	if existing, err := s.repo.FindByUserAsset(ctx, s.db, identity.UserID, assetID); err != nil {
		return unlockdomain.UnlockResult{}, err
	} else if existing != nil {
		return s.replayResult(*existing, asset), nil
	}

	now := s.clock.Now()
	if err := s.assetSvc.CheckEligibility(asset, identity, now); err != nil {
		s.recordOutcome("rejected")
		return unlockdomain.UnlockResult{}, err
	}

	quote := s.quoteAsset(ctx, asset, now)

	// Advisory per-user lock: keeps concurrent settlements for one user off
	// each other's row locks across nodes. Correctness does not depend on it;
	// the transaction below is the boundary.
	if s.settleLock != nil {
		if token, ok, err := s.settleLock.Acquire(ctx, identity.UserID); err == nil && ok {
			defer func() { _ = s.settleLock.Release(context.WithoutCancel(ctx), identity.UserID, token) }()
		}
	}

	var (
		record unlockdomain.UnlockRecord
		replay bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries, err := s.ledgerRepo.SpendableEntries(ctx, tx, identity.UserID, now)
		if err != nil {
			return err
		}

		record = unlockdomain.UnlockRecord{
			ID:           s.genID.Generate(),
			UserID:       identity.UserID,
			AssetID:      assetID,
			CreditsSpent: quote.Cost,
			UnlockedAt:   now,
			TierAtUnlock: identity.Tier,
		}
		created, err := s.repo.InsertRecord(ctx, tx, &record)
		if err != nil {
			return err
		}
		if !created {
			// Lost the (user, asset) race: the winner's settlement stands and
			// this transaction commits nothing else. This must run before any
			// balance check — the winner may have drained the wallet, and the
			// loser still observes the winner's result, not an insufficiency.
			winner, err := s.repo.FindByUserAsset(ctx, tx, identity.UserID, assetID)
			if err != nil {
				return err
			}
			if winner == nil {
				return unlockdomain.ErrUnlockNotFound
			}
			record = *winner
			replay = true
			return nil
		}

		var available int64
		for _, e := range entries {
			available += e.QtyRemaining
		}
		if available < quote.Cost {
			// Rolls the record insert back along with everything else.
			return unlockdomain.ErrInsufficientCredits
		}

		// FIFO walk: drain soonest-to-expire batches first.
		remaining := quote.Cost
		for _, entry := range entries {
			if remaining == 0 {
				break
			}
			take := min(remaining, entry.QtyRemaining)
			if err := s.ledgerRepo.DebitEntry(ctx, tx, entry.ID, take); err != nil {
				return err
			}
			if err := s.repo.InsertJournal(ctx, tx, &unlockdomain.SpendJournalEntry{
				ID:              s.genID.Generate(),
				UnlockID:        record.ID,
				LedgerEntryID:   entry.ID,
				CreditsConsumed: take,
			}); err != nil {
				return err
			}
			remaining -= take
		}

		if _, err := s.ledgerSvc.RecomputeWalletTx(ctx, tx, identity.UserID, now); err != nil {
			return err
		}

		recordID := record.ID.String()
		actorID := identity.UserID.String()
		metadata := map[string]any{
			"asset_id":      assetID.String(),
			"credits_spent": quote.Cost,
			"opportunity":   quote.Adjusted,
		}
		if quote.Fallback {
			metadata["score_fallback"] = true
		}
		return s.auditSvc.RecordTx(ctx, tx, auditdomain.ActorTypeUser, &actorID, "unlock.settled", "unlock_record", &recordID, metadata)
	})
	if err != nil {
		if err == unlockdomain.ErrInsufficientCredits {
			s.recordOutcome("insufficient_credits")
		}
		return unlockdomain.UnlockResult{}, err
	}

	if replay {
		s.recordOutcome("duplicate")
		return s.replayResult(record, asset), nil
	}

	s.recordOutcome("settled")
	if quote.Fallback && s.obsMetrics != nil {
		s.obsMetrics.RecordScoreFallback()
	}
	s.log.Info("unlock settled",
		zap.String("user_id", identity.UserID.String()),
		zap.String("asset_id", assetID.String()),
		zap.Int64("credits_spent", quote.Cost),
	)

	return unlockdomain.UnlockResult{
		Record:       record,
		Payload:      asset.UnlockPayload(),
		CreditsSpent: quote.Cost,
		Quote:        quote,
	}, nil
}

func (s *Service) Journal(ctx context.Context, unlockID snowflake.ID) ([]unlockdomain.SpendJournalEntry, error) {
	if _, err := s.repo.FindByID(ctx, s.db, unlockID); err != nil {
		return nil, err
	}
	return s.repo.JournalByUnlock(ctx, s.db, unlockID)
}

func (s *Service) GetByID(ctx context.Context, unlockID snowflake.ID) (unlockdomain.UnlockRecord, error) {
	record, err := s.repo.FindByID(ctx, s.db, unlockID)
	if err != nil {
		return unlockdomain.UnlockRecord{}, err
	}
	return *record, nil
}

// quoteAsset prices the unlock, falling back to the floor tier when scoring
// inputs cannot be assembled. Pricing problems never abort settlement.
func (s *Service) quoteAsset(ctx context.Context, asset assetdomain.Asset, now time.Time) pricingdomain.Quote {
	inputs, err := s.assetSvc.ScoreInputs(ctx, asset, now)
	if err != nil {
		s.log.Warn("score inputs unavailable, pricing at floor",
			zap.String("asset_id", asset.ID.String()),
			zap.Error(err),
		)
		return pricingdomain.Quote{Cost: 1, Fallback: true}
	}
	return s.pricingSvc.Quote(ctx, inputs, now)
}

func (s *Service) replayResult(record unlockdomain.UnlockRecord, asset assetdomain.Asset) unlockdomain.UnlockResult {
	return unlockdomain.UnlockResult{
		Record:          record,
		Payload:         asset.UnlockPayload(),
		CreditsSpent:    0,
		AlreadyUnlocked: true,
	}
}

func (s *Service) recordOutcome(outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordUnlock(outcome)
	}
}
