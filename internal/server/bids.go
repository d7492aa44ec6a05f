package server

import (
	"net/http"

	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type placeBidRequest struct {
	ContractorID string `json:"contractor_id" binding:"required"`
	JobID        string `json:"job_id" binding:"required"`
	AmountCents  int64  `json:"amount_cents" binding:"required"`
	Message      string `json:"message"`
}

func (s *Server) placeBid(c *gin.Context) {
	var body placeBidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	contractorID, err := snowflake.ParseString(body.ContractorID)
	if err != nil || contractorID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	jobID, err := snowflake.ParseString(body.JobID)
	if err != nil || jobID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if s.bidLimiter != nil {
		result, err := s.bidLimiter.Allow(c.Request.Context(), contractorID)
		if err != nil {
			// Redis being down must not take bidding down with it.
			s.log.Warn("bid rate limiter unavailable", zap.Error(err))
		} else if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "place_bid")
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	resp, err := s.bidSvc.PlaceBid(c.Request.Context(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  body.AmountCents,
		Message:      body.Message,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
