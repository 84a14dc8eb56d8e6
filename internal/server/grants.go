package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/claimlens/claimlens/internal/ledger/domain"
)

type createGrantRequest struct {
	UserID          string `json:"user_id" binding:"required"`
	Source          string `json:"source" binding:"required"`
	Qty             int64  `json:"qty" binding:"required"`
	ExpiresAt       string `json:"expires_at"`
	ExternalEventID string `json:"external_event_id"`
	Tier            string `json:"tier"`
}

func (s *Server) CreateGrant(c *gin.Context) {
	var req createGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	expiresAt, err := parseOptionalTime(req.ExpiresAt)
	if err != nil {
		AbortWithError(c, newValidationError("expires_at", "invalid_expires_at", "invalid expires_at"))
		return
	}

	grant := ledgerdomain.GrantRequest{
		UserID:    userID,
		Source:    ledgerdomain.GrantSource(strings.ToLower(strings.TrimSpace(req.Source))),
		Qty:       req.Qty,
		ExpiresAt: expiresAt,
		Tier:      strings.ToLower(strings.TrimSpace(req.Tier)),
	}
	if eventID := strings.TrimSpace(req.ExternalEventID); eventID != "" {
		grant.ExternalEventID = &eventID
	}

	entry, created, err := s.ledgerSvc.Grant(c.Request.Context(), grant)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"entry": entry, "created": created})
}
