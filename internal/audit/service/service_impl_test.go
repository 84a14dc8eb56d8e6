package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/claimlens/claimlens/internal/audit/domain"
	auditrepository "github.com/claimlens/claimlens/internal/audit/repository"
	"github.com/claimlens/claimlens/internal/authcontext"
	"github.com/claimlens/claimlens/pkg/db/pagination"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupAuditTest(t *testing.T) (auditdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	return svc, db
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _ := setupAuditTest(t)

	err := svc.Record(context.Background(), auditdomain.ActorTypeSystem, nil, "  ", "wallet", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestRecordResolvesActorFromIdentity(t *testing.T) {
	svc, db := setupAuditTest(t)

	ctx := authcontext.WithIdentity(context.Background(), authcontext.Identity{UserID: 77, Tier: "pro"})
	require.NoError(t, svc.Record(ctx, "", nil, "unlock.settled", "unlock_record", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, auditdomain.ActorTypeUser, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
}

func TestRecordWithoutIdentityDefaultsToSystem(t *testing.T) {
	svc, db := setupAuditTest(t)

	require.NoError(t, svc.Record(context.Background(), "", nil, "ledger.grant", "ledger_entry", nil, map[string]any{"qty": 5}))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, auditdomain.ActorTypeSystem, entry.ActorType)
	assert.Nil(t, entry.ActorID)
}

func TestListFilters(t *testing.T) {
	svc, _ := setupAuditTest(t)
	ctx := context.Background()

	targetID := "asset-1"
	require.NoError(t, svc.Record(ctx, auditdomain.ActorTypeSystem, nil, "ledger.grant", "ledger_entry", nil, nil))
	require.NoError(t, svc.Record(ctx, auditdomain.ActorTypeUser, nil, "unlock.settled", "unlock_record", &targetID, nil))
	require.NoError(t, svc.Record(ctx, auditdomain.ActorTypeAdmin, nil, "asset.created", "asset", &targetID, nil))

	t.Run("by action", func(t *testing.T) {
		resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "unlock.settled"})
		require.NoError(t, err)
		require.Len(t, resp.AuditLogs, 1)
		assert.Equal(t, "unlock.settled", resp.AuditLogs[0].Action)
	})

	t.Run("by actor type", func(t *testing.T) {
		resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{ActorType: auditdomain.ActorTypeAdmin})
		require.NoError(t, err)
		require.Len(t, resp.AuditLogs, 1)
		assert.Equal(t, "asset.created", resp.AuditLogs[0].Action)
	})

	t.Run("by target", func(t *testing.T) {
		resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{TargetID: targetID})
		require.NoError(t, err)
		assert.Len(t, resp.AuditLogs, 2)
	})

	t.Run("unfiltered, newest first", func(t *testing.T) {
		resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
		require.NoError(t, err)
		require.Len(t, resp.AuditLogs, 3)
		assert.Equal(t, "asset.created", resp.AuditLogs[0].Action)
		assert.False(t, resp.HasMore)
	})
}

func TestListPagination(t *testing.T) {
	svc, _ := setupAuditTest(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, auditdomain.ActorTypeSystem, nil, "ledger.grant", "ledger_entry", nil, nil))
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 2)
	assert.True(t, second.HasMore)

	third, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: second.NextPageToken},
	})
	require.NoError(t, err)
	assert.Len(t, third.AuditLogs, 1)
	assert.False(t, third.HasMore)

	// No row appears on two pages.
	seen := map[snowflake.ID]bool{}
	for _, page := range [][]auditdomain.AuditLog{first.AuditLogs, second.AuditLogs, third.AuditLogs} {
		for _, row := range page {
			assert.False(t, seen[row.ID])
			seen[row.ID] = true
		}
	}
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := setupAuditTest(t)
	ctx := context.Background()

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!!"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
