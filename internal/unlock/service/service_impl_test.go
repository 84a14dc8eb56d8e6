package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	assetrepository "github.com/claimlens/claimlens/internal/asset/repository"
	assetservice "github.com/claimlens/claimlens/internal/asset/service"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	auditrepository "github.com/claimlens/claimlens/internal/audit/repository"
	auditservice "github.com/claimlens/claimlens/internal/audit/service"
	"github.com/claimlens/claimlens/internal/authcontext"
	"github.com/claimlens/claimlens/internal/clock"
	"github.com/claimlens/claimlens/internal/config"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	ledgerrepository "github.com/claimlens/claimlens/internal/ledger/repository"
	ledgerservice "github.com/claimlens/claimlens/internal/ledger/service"
	pricingservice "github.com/claimlens/claimlens/internal/pricing/service"
	unlockdomain "github.com/claimlens/claimlens/internal/unlock/domain"
	unlockrepository "github.com/claimlens/claimlens/internal/unlock/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type settlementFixture struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	genID     *snowflake.Node
	ledgerSvc ledgerdomain.Service
	unlockSvc unlockdomain.Service
	params    Params
}

func setupSettlementTest(t *testing.T) *settlementFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&assetdomain.Asset{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Wallet{},
		&unlockdomain.UnlockRecord{},
		&unlockdomain.SpendJournalEntry{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	pricingHolder := config.NewStaticPricingConfigHolder(config.DefaultPricingConfig())

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: fc,
		Repo: ledgerrepository.Provide(), AuditSvc: auditSvc,
	})
	assetSvc := assetservice.NewService(assetservice.Params{
		DB: db, Log: log, GenID: node,
		Repo: assetrepository.Provide(), Pricing: pricingHolder,
	})
	pricingSvc := pricingservice.NewService(pricingservice.Params{
		Log: log, Pricing: pricingHolder,
	})
	params := Params{
		DB: db, Log: log, GenID: node, Clock: fc,
		Repo:       unlockrepository.Provide(),
		LedgerSvc:  ledgerSvc,
		LedgerRepo: ledgerrepository.Provide(),
		AssetSvc:   assetSvc,
		PricingSvc: pricingSvc,
		AuditSvc:   auditSvc,
	}

	return &settlementFixture{
		db:        db,
		clock:     fc,
		genID:     node,
		ledgerSvc: ledgerSvc,
		unlockSvc: NewService(params),
		params:    params,
	}
}

// insertAsset stores an actionable premium-band asset unless overridden.
func (f *settlementFixture) insertAsset(t *testing.T, mutate func(*assetdomain.Asset)) assetdomain.Asset {
	t.Helper()
	now := f.clock.Now()
	sale := now.AddDate(0, 0, -120)
	surplus := 500_000.0
	verified := now

	asset := assetdomain.Asset{
		ID:            f.genID.Generate(),
		County:        "Maricopa",
		State:         "AZ",
		SaleDate:      &sale,
		SurplusAmount: &surplus,
		SourceCount:   5,
		LastVerified:  &verified,
		OwnerName:     "Jordan Avery",
		OwnerAddress:  "410 W Jefferson St, Phoenix, AZ",
		ParcelNumber:  "112-34-567",
		CaseNumber:    "CV2024-001234",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&asset)
	}
	require.NoError(t, f.db.Create(&asset).Error)
	return asset
}

func (f *settlementFixture) grant(t *testing.T, userID snowflake.ID, source ledgerdomain.GrantSource, qty int64, expiresAt *time.Time) ledgerdomain.LedgerEntry {
	t.Helper()
	entry, _, err := f.ledgerSvc.Grant(context.Background(), ledgerdomain.GrantRequest{
		UserID:    userID,
		Source:    source,
		Qty:       qty,
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return entry
}

func verifiedUser(id int64) authcontext.Identity {
	return authcontext.Identity{UserID: snowflake.ID(id), Tier: "basic", ContactVerified: true}
}

func TestUnlockDrainsBatchesSoonestExpiryFirst(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(100)

	// Premium-band asset: fresh, heavily sourced, large surplus. Costs 3.
	asset := f.insertAsset(t, nil)

	expiry := f.clock.Now().AddDate(0, 0, 30)
	expiring := f.grant(t, identity.UserID, ledgerdomain.GrantSourceStarter, 2, &expiry)
	open := f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 5, nil)

	result, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyUnlocked)
	assert.Equal(t, int64(3), result.CreditsSpent)
	assert.Equal(t, int64(3), result.Record.CreditsSpent)
	assert.Equal(t, "Jordan Avery", result.Payload.OwnerName)
	assert.Equal(t, int64(3), result.Quote.Cost)

	// The expiring batch drains completely before the open-ended one.
	var got ledgerdomain.LedgerEntry
	require.NoError(t, f.db.First(&got, "id = ?", expiring.ID).Error)
	assert.Zero(t, got.QtyRemaining)
	got = ledgerdomain.LedgerEntry{}
	require.NoError(t, f.db.First(&got, "id = ?", open.ID).Error)
	assert.Equal(t, int64(4), got.QtyRemaining)

	journal, err := f.unlockSvc.Journal(ctx, result.Record.ID)
	require.NoError(t, err)
	require.Len(t, journal, 2)
	assert.Equal(t, expiring.ID, journal[0].LedgerEntryID)
	assert.Equal(t, int64(2), journal[0].CreditsConsumed)
	assert.Equal(t, open.ID, journal[1].LedgerEntryID)
	assert.Equal(t, int64(1), journal[1].CreditsConsumed)

	balance, err := f.ledgerSvc.Balance(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance.SubscriptionCredits)
	assert.Zero(t, balance.PurchasedCredits)

	var auditCount int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "unlock.settled").
		Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestUnlockInsufficientCreditsLeavesLedgerUntouched(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(101)

	asset := f.insertAsset(t, nil)
	entry := f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 1, nil)

	_, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	assert.ErrorIs(t, err, unlockdomain.ErrInsufficientCredits)

	var got ledgerdomain.LedgerEntry
	require.NoError(t, f.db.First(&got, "id = ?", entry.ID).Error)
	assert.Equal(t, int64(1), got.QtyRemaining)

	var recordCount int64
	require.NoError(t, f.db.Model(&unlockdomain.UnlockRecord{}).Count(&recordCount).Error)
	assert.Zero(t, recordCount)
}

func TestUnlockReplayIsFree(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(102)

	asset := f.insertAsset(t, nil)
	f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 10, nil)

	first, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)

	replay, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyUnlocked)
	assert.Zero(t, replay.CreditsSpent)
	assert.Equal(t, first.Record.ID, replay.Record.ID)
	assert.Equal(t, "Jordan Avery", replay.Payload.OwnerName)

	balance, err := f.ledgerSvc.Balance(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance.SubscriptionCredits)

	var journalCount int64
	require.NoError(t, f.db.Model(&unlockdomain.SpendJournalEntry{}).Count(&journalCount).Error)
	assert.Equal(t, int64(1), journalCount)
}

func TestUnlockReplaySurvivesAssetExpiry(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(103)

	asset := f.insertAsset(t, nil)
	f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 5, nil)

	_, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)

	// The record was actionable when unlocked; it aging out afterwards must
	// not take the payload away from a paying user.
	f.clock.Advance(400 * 24 * time.Hour)

	replay, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyUnlocked)
	assert.Equal(t, "Jordan Avery", replay.Payload.OwnerName)
}

func TestUnlockRestrictedRecord(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()

	asset := f.insertAsset(t, func(a *assetdomain.Asset) {
		sale := f.clock.Now().AddDate(0, 0, -30)
		a.SaleDate = &sale
	})

	basic := verifiedUser(104)
	f.grant(t, basic.UserID, ledgerdomain.GrantSourceSubscription, 10, nil)
	_, err := f.unlockSvc.Unlock(ctx, basic, asset.ID)
	assert.ErrorIs(t, err, assetdomain.ErrRestrictionNotMet)

	attorney := authcontext.Identity{
		UserID:               105,
		Tier:                 "pro",
		VerifiedProfessional: true,
		ContactVerified:      true,
	}
	f.grant(t, attorney.UserID, ledgerdomain.GrantSourceSubscription, 10, nil)
	result, err := f.unlockSvc.Unlock(ctx, attorney, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", result.Record.TierAtUnlock)
}

func TestUnlockExpiredAsset(t *testing.T) {
	f := setupSettlementTest(t)
	identity := verifiedUser(106)

	asset := f.insertAsset(t, func(a *assetdomain.Asset) {
		sale := f.clock.Now().AddDate(0, 0, -500)
		a.SaleDate = &sale
	})
	f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 10, nil)

	_, err := f.unlockSvc.Unlock(context.Background(), identity, asset.ID)
	assert.ErrorIs(t, err, assetdomain.ErrAssetExpired)
}

func TestUnlockUnscorableAssetPricesAtFloor(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(107)

	asset := f.insertAsset(t, func(a *assetdomain.Asset) {
		a.SurplusAmount = nil
		a.LastVerified = nil
	})
	f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 5, nil)

	result, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.CreditsSpent)
	assert.True(t, result.Quote.Fallback)
}

func TestUnlockUnknownAsset(t *testing.T) {
	f := setupSettlementTest(t)
	identity := verifiedUser(108)

	_, err := f.unlockSvc.Unlock(context.Background(), identity, f.genID.Generate())
	assert.ErrorIs(t, err, assetdomain.ErrAssetNotFound)
}

// lateRecordRepo misses the first FindByUserAsset so a record inserted after
// the fast-path check is only discovered inside the settlement transaction,
// the interleaving two concurrent unlocks of one (user, asset) produce.
type lateRecordRepo struct {
	unlockdomain.Repository
	misses int
}

func (r *lateRecordRepo) FindByUserAsset(ctx context.Context, db *gorm.DB, userID, assetID snowflake.ID) (*unlockdomain.UnlockRecord, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.Repository.FindByUserAsset(ctx, db, userID, assetID)
}

func TestUnlockLoserObservesWinnersRecord(t *testing.T) {
	f := setupSettlementTest(t)
	ctx := context.Background()
	identity := verifiedUser(109)

	asset := f.insertAsset(t, nil)
	f.grant(t, identity.UserID, ledgerdomain.GrantSourceSubscription, 3, nil)

	p := f.params
	p.Repo = &lateRecordRepo{Repository: p.Repo, misses: 1}
	loserSvc := NewService(p)

	// The winner settles first, draining the wallet to zero.
	winner, err := f.unlockSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), winner.CreditsSpent)

	// The loser's fast path saw no record; its insert conflicts in-transaction
	// and it must come back with the winner's settlement, not an
	// insufficiency against the drained balance.
	result, err := loserSvc.Unlock(ctx, identity, asset.ID)
	require.NoError(t, err)
	assert.True(t, result.AlreadyUnlocked)
	assert.Zero(t, result.CreditsSpent)
	assert.Equal(t, winner.Record.ID, result.Record.ID)

	var recordCount int64
	require.NoError(t, f.db.Model(&unlockdomain.UnlockRecord{}).Count(&recordCount).Error)
	assert.Equal(t, int64(1), recordCount)

	balance, err := f.ledgerSvc.Balance(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Zero(t, balance.SubscriptionCredits)
	assert.Zero(t, balance.PurchasedCredits)
}

func TestJournalForUnknownUnlock(t *testing.T) {
	f := setupSettlementTest(t)

	_, err := f.unlockSvc.Journal(context.Background(), f.genID.Generate())
	assert.ErrorIs(t, err, unlockdomain.ErrUnlockNotFound)
}
