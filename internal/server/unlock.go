package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) UnlockRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.unlockLimiter == nil {
			c.Next()
			return
		}
		identity, ok := identityFrom(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		allowed, err := s.unlockLimiter.AllowUser(c.Request.Context(), identity.UserID)
		if err != nil {
			zap.L().Warn("unlock rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimited()
			}
			c.Header("Retry-After", strconv.Itoa(s.cfg.UnlockRateWindowSeconds))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) UnlockAsset(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	assetID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_asset_id", "invalid asset id"))
		return
	}

	result, err := s.unlockSvc.Unlock(c.Request.Context(), identity, assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":           result.Record,
		"payload":          result.Payload,
		"credits_spent":    result.CreditsSpent,
		"already_unlocked": result.AlreadyUnlocked,
		"quote":            result.Quote,
	})
}

func (s *Server) GetUnlock(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	unlockID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_unlock_id", "invalid unlock id"))
		return
	}

	record, err := s.unlockSvc.GetByID(c.Request.Context(), unlockID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record.UserID != identity.UserID {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (s *Server) GetUnlockJournal(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	unlockID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_unlock_id", "invalid unlock id"))
		return
	}

	record, err := s.unlockSvc.GetByID(c.Request.Context(), unlockID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if record.UserID != identity.UserID {
		AbortWithError(c, ErrNotFound)
		return
	}

	entries, err := s.unlockSvc.Journal(c.Request.Context(), unlockID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record, "journal": entries})
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, ErrInvalidRequest
	}
	return id, nil
}
