package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/claimlens/claimlens/internal/authcontext"
)

// Identity headers set by the auth gateway in front of this service. The
// settlement core treats them as asserted facts, never derives them.
const (
	HeaderUserID               = "X-User-Id"
	HeaderUserTier             = "X-User-Tier"
	HeaderVerifiedProfessional = "X-Verified-Professional"
	HeaderContactVerified      = "X-Contact-Verified"
)

func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if rawID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(rawID)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity := authcontext.Identity{
			UserID:               userID,
			Tier:                 strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderUserTier))),
			VerifiedProfessional: headerFlag(c, HeaderVerifiedProfessional),
			ContactVerified:      headerFlag(c, HeaderContactVerified),
		}

		c.Request = c.Request.WithContext(authcontext.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminAPIToken == "" {
			AbortWithError(c, ErrForbidden)
			return
		}
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" || token != s.cfg.AdminAPIToken {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (authcontext.Identity, bool) {
	return authcontext.IdentityFromContext(c.Request.Context())
}

func headerFlag(c *gin.Context, header string) bool {
	switch strings.ToLower(strings.TrimSpace(c.GetHeader(header))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
