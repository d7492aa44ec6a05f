package server

import (
	"net/http"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) listPlans(c *gin.Context) {
	category := membershipdomain.UserCategory(c.DefaultQuery("category", string(membershipdomain.CategoryContractor)))
	if category != membershipdomain.CategoryContractor && category != membershipdomain.CategoryCustomer {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	plans, err := s.membershipSvc.ListPlans(c.Request.Context(), category)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) effectivePlan(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	plan, err := s.membershipSvc.EffectivePlan(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

type upgradeRequest struct {
	PlanID        string `json:"plan_id" binding:"required"`
	BillingPeriod string `json:"billing_period" binding:"required"`
}

func (s *Server) upgradeMembership(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	var body upgradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	planID, err := snowflake.ParseString(body.PlanID)
	if err != nil || planID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.membershipSvc.Upgrade(c.Request.Context(), membershipdomain.UpgradeRequest{
		UserID:        userID,
		NewPlanID:     planID,
		BillingPeriod: membershipdomain.BillingPeriod(body.BillingPeriod),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
