package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pledgesync/internal/importer"
)

type abandonedSweepRequest struct {
	// TimeoutHours defaults to SWEEP_TIMEOUT_HOURS when zero.
	TimeoutHours float64 `json:"timeout_hours"`
}

type importRequest struct {
	ProcessorID snowflake.ID `json:"processor_id"`
	Since       *time.Time   `json:"since"`
	Limit       int          `json:"limit"`
}

func (s *Server) RunAbandonedSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req abandonedSweepRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	result, err := s.scheduler.RunAbandonedSweep(c.Request.Context(), req.TimeoutHours)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RunImport walks the processor's subscriptions synchronously. Operator
// confirmation is only available from the CLI, so every unknown
// subscription is imported.
func (s *Server) RunImport(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ProcessorID == 0 {
		AbortWithError(c, newValidationError("processor_id", "required", "processor_id is required"))
		return
	}

	stats, err := s.scheduler.RunImport(c.Request.Context(), importer.Options{
		ProcessorID: req.ProcessorID,
		Since:       req.Since,
		Limit:       req.Limit,
	}, nil)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         stats,
		"summary_path": stats.SummaryPath,
	})
}
