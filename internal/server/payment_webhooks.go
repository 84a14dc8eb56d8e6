package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	paymentdomain "github.com/claimlens/claimlens/internal/payment/domain"
)

// HandlePaymentWebhook accepts processor deliveries. First delivery and
// replay both answer 200 so the processor stops retrying.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.paymentSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

type checkoutRequest struct {
	PackID  string `json:"pack_id" binding:"required"`
	Credits int64  `json:"credits"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.paymentSvc.CreateCheckout(c.Request.Context(), paymentdomain.CheckoutRequest{
		UserID:  identity.UserID,
		PackID:  req.PackID,
		Credits: req.Credits,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}
