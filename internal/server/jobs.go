package server

import (
	"net/http"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) listVisibleJobs(c *gin.Context) {
	contractorID, err := snowflake.ParseString(c.Query("contractor_id"))
	if err != nil || contractorID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := accessdomain.VisibleJobsRequest{
		Filters: jobdomain.ListRequest{
			Service: c.Query("service"),
			Type:    jobdomain.JobType(c.Query("type")),
		},
		Page:  queryInt(c, "page", 1),
		Limit: queryInt(c, "limit", 0),
	}

	resp, err := s.accessSvc.ListVisibleJobs(c.Request.Context(), contractorID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// jobAccess answers "can this contractor see this job" as data instead of
// an error: denials are an expected outcome on this endpoint.
func (s *Server) jobAccess(c *gin.Context) {
	jobID, ok := pathID(c, "jobID")
	if !ok {
		return
	}
	contractorID, err := snowflake.ParseString(c.Query("contractor_id"))
	if err != nil || contractorID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.accessSvc.CanAccessJob(c.Request.Context(), contractorID, jobID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"allowed": true})
		return
	}
	if denial, ok := accessdomain.IsDenied(err); ok {
		c.JSON(http.StatusOK, gin.H{"allowed": false, "denial": denial})
		return
	}
	AbortWithError(c, err)
}
