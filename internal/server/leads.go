package server

import (
	"net/http"

	"github.com/MnbNwz/aab-platform-sub003/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

func (s *Server) leadLimit(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	result, err := s.leadSvc.CheckLimit(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) leadHistory(c *gin.Context) {
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.leadSvc.History(c.Request.Context(), userID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
