package server

import (
	"net/http"
	"testing"

	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
	unlockdomain "github.com/claimlens/claimlens/internal/unlock/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: newValidationError("qty", "invalid", "qty must be positive"), wantStatus: http.StatusBadRequest},
		{name: "starter expiry", err: ledgerdomain.ErrStarterExpiryRequired, wantStatus: http.StatusBadRequest},
		{name: "bad signature", err: paymentdomain.ErrInvalidSignature, wantStatus: http.StatusUnauthorized},
		{name: "insufficient credits", err: unlockdomain.ErrInsufficientCredits, wantStatus: http.StatusPaymentRequired},
		{name: "restriction not met", err: assetdomain.ErrRestrictionNotMet, wantStatus: http.StatusForbidden},
		{name: "contact unverified", err: assetdomain.ErrContactUnverified, wantStatus: http.StatusForbidden},
		{name: "asset missing", err: assetdomain.ErrAssetNotFound, wantStatus: http.StatusNotFound},
		{name: "asset expired", err: assetdomain.ErrAssetExpired, wantStatus: http.StatusGone},
		{name: "asset unknown state", err: assetdomain.ErrAssetNotUnlockable, wantStatus: http.StatusConflict},
		{name: "rate limited", err: ErrRateLimited, wantStatus: http.StatusTooManyRequests},
		{name: "checkout down", err: paymentdomain.ErrCheckoutUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "unclassified", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := mapError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
