package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	assetdomain "github.com/claimlens/claimlens/internal/asset/domain"
)

// GetAsset returns the public view of a record: attributes, derived state and
// the current quote. Contact fields only come back through a settled unlock.
func (s *Server) GetAsset(c *gin.Context) {
	assetID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_asset_id", "invalid asset id"))
		return
	}

	asset, err := s.assetSvc.GetByID(c.Request.Context(), assetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clock.Now()
	state := s.assetSvc.StateOf(asset, now)

	inputs, err := s.assetSvc.ScoreInputs(c.Request.Context(), asset, now)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	quote := s.pricingSvc.Quote(c.Request.Context(), inputs, now)

	c.JSON(http.StatusOK, gin.H{
		"asset": asset,
		"state": state,
		"quote": quote,
	})
}

type createAssetRequest struct {
	County        string   `json:"county" binding:"required"`
	State         string   `json:"state" binding:"required"`
	SaleDate      string   `json:"sale_date"`
	SurplusAmount *float64 `json:"surplus_amount"`
	SourceCount   int      `json:"source_count"`
	LastVerified  string   `json:"last_verified"`
	OwnerName     string   `json:"owner_name"`
	OwnerAddress  string   `json:"owner_address"`
	ParcelNumber  string   `json:"parcel_number"`
	CaseNumber    string   `json:"case_number"`
}

func (s *Server) CreateAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	saleDate, err := parseOptionalTime(req.SaleDate)
	if err != nil {
		AbortWithError(c, newValidationError("sale_date", "invalid_sale_date", "invalid sale_date"))
		return
	}
	lastVerified, err := parseOptionalTime(req.LastVerified)
	if err != nil {
		AbortWithError(c, newValidationError("last_verified", "invalid_last_verified", "invalid last_verified"))
		return
	}

	created, err := s.assetSvc.Create(c.Request.Context(), assetdomain.Asset{
		County:        strings.TrimSpace(req.County),
		State:         strings.ToUpper(strings.TrimSpace(req.State)),
		SaleDate:      saleDate,
		SurplusAmount: req.SurplusAmount,
		SourceCount:   req.SourceCount,
		LastVerified:  lastVerified,
		OwnerName:     strings.TrimSpace(req.OwnerName),
		OwnerAddress:  strings.TrimSpace(req.OwnerAddress),
		ParcelNumber:  strings.TrimSpace(req.ParcelNumber),
		CaseNumber:    strings.TrimSpace(req.CaseNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"asset": created})
}

func parseOptionalTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
