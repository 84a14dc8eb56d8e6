package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	auditrepository "github.com/claimlens/claimlens/internal/audit/repository"
	auditservice "github.com/claimlens/claimlens/internal/audit/service"
	"github.com/claimlens/claimlens/internal/clock"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	ledgerrepository "github.com/claimlens/claimlens/internal/ledger/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedgerTest(t *testing.T) (ledgerdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Wallet{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fc,
		Repo:     ledgerrepository.Provide(),
		AuditSvc: auditSvc,
	})
	return svc, db, fc
}

func strPtr(s string) *string { return &s }

func TestGrantValidation(t *testing.T) {
	svc, _, fc := setupLedgerTest(t)
	ctx := context.Background()
	expiry := fc.Now().AddDate(0, 0, 90)

	tests := []struct {
		name    string
		req     ledgerdomain.GrantRequest
		wantErr error
	}{
		{
			name:    "missing user",
			req:     ledgerdomain.GrantRequest{Source: ledgerdomain.GrantSourceAdmin, Qty: 5},
			wantErr: ledgerdomain.ErrInvalidUser,
		},
		{
			name:    "zero qty",
			req:     ledgerdomain.GrantRequest{UserID: 1, Source: ledgerdomain.GrantSourceAdmin, Qty: 0},
			wantErr: ledgerdomain.ErrInvalidQty,
		},
		{
			name:    "negative qty",
			req:     ledgerdomain.GrantRequest{UserID: 1, Source: ledgerdomain.GrantSourceAdmin, Qty: -3},
			wantErr: ledgerdomain.ErrInvalidQty,
		},
		{
			name:    "unknown source",
			req:     ledgerdomain.GrantRequest{UserID: 1, Source: "promo", Qty: 5},
			wantErr: ledgerdomain.ErrInvalidSource,
		},
		{
			name:    "starter grant without expiry",
			req:     ledgerdomain.GrantRequest{UserID: 1, Source: ledgerdomain.GrantSourceStarter, Qty: 5},
			wantErr: ledgerdomain.ErrStarterExpiryRequired,
		},
		{
			name: "starter grant with expiry",
			req:  ledgerdomain.GrantRequest{UserID: 1, Source: ledgerdomain.GrantSourceStarter, Qty: 5, ExpiresAt: &expiry},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Grant(ctx, tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGrantUpdatesWalletByCategory(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	ctx := context.Background()
	userID := snowflake.ID(42)

	_, created, err := svc.Grant(ctx, ledgerdomain.GrantRequest{
		UserID: userID,
		Source: ledgerdomain.GrantSourceSubscription,
		Qty:    10,
		Tier:   "pro",
	})
	require.NoError(t, err)
	assert.True(t, created)

	_, _, err = svc.Grant(ctx, ledgerdomain.GrantRequest{
		UserID: userID,
		Source: ledgerdomain.GrantSourceAdmin,
		Qty:    4,
	})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.SubscriptionCredits)
	assert.Equal(t, int64(4), balance.PurchasedCredits)
	assert.Equal(t, "pro", balance.Tier)

	var auditCount int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "ledger.grant").
		Count(&auditCount).Error)
	assert.Equal(t, int64(2), auditCount)
}

func TestGrantReplaySameExternalEvent(t *testing.T) {
	svc, db, _ := setupLedgerTest(t)
	ctx := context.Background()
	userID := snowflake.ID(7)

	req := ledgerdomain.GrantRequest{
		UserID:          userID,
		Source:          ledgerdomain.GrantSourceSubscription,
		Qty:             25,
		ExternalEventID: strPtr("evt_renewal_001"),
	}

	first, created, err := svc.Grant(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	replay, created, err := svc.Grant(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)

	var entryCount int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&entryCount).Error)
	assert.Equal(t, int64(1), entryCount)

	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance.SubscriptionCredits)
}

func TestRecomputeWalletSkipsExpiredEntries(t *testing.T) {
	svc, db, fc := setupLedgerTest(t)
	ctx := context.Background()
	userID := snowflake.ID(9)

	expiry := fc.Now().AddDate(0, 0, 30)
	_, _, err := svc.Grant(ctx, ledgerdomain.GrantRequest{
		UserID:    userID,
		Source:    ledgerdomain.GrantSourceStarter,
		Qty:       5,
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)

	fc.Set(expiry.Add(24 * time.Hour))

	wallet, err := svc.RecomputeWalletTx(ctx, db, userID, fc.Now())
	require.NoError(t, err)
	assert.Zero(t, wallet.PurchasedCredits)
	assert.Zero(t, wallet.SubscriptionCredits)
}

func TestBalanceForUnknownUserIsEmpty(t *testing.T) {
	svc, _, _ := setupLedgerTest(t)

	balance, err := svc.Balance(context.Background(), snowflake.ID(999))
	require.NoError(t, err)
	assert.Zero(t, balance.SubscriptionCredits)
	assert.Zero(t, balance.PurchasedCredits)
}

func TestListEntriesNewestFirst(t *testing.T) {
	svc, _, fc := setupLedgerTest(t)
	ctx := context.Background()
	userID := snowflake.ID(11)

	_, _, err := svc.Grant(ctx, ledgerdomain.GrantRequest{
		UserID: userID, Source: ledgerdomain.GrantSourceAdmin, Qty: 1,
	})
	require.NoError(t, err)

	fc.Advance(time.Hour)
	second, _, err := svc.Grant(ctx, ledgerdomain.GrantRequest{
		UserID: userID, Source: ledgerdomain.GrantSourceAdmin, Qty: 2,
	})
	require.NoError(t, err)

	entries, err := svc.ListEntries(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
}
