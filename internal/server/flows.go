package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

const maxListLimit = 1000

var (
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrRunFlow      = errors.New("failed to run flow")
	ErrGetFlowRun   = errors.New("failed to get flow run")
	ErrListFlowRuns = errors.New("failed to list flow runs")
)

func (s *Server) runFlow(c *gin.Context) {
	var req api.RunFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	summary, err := s.engine.Execute(c.Request.Context(), req.Flow, req.Input)
	if err == nil {
		c.JSON(http.StatusOK, summary)
		return
	}

	var verr *api.FlowValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  verr.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	if summary != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Summary: summary,
			Error:   summary.Error,
			Status:  http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrRunFlow, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) getFlowRun(c *gin.Context) {
	id := api.FlowRunID(c.Param("flowRunID"))

	detail, err := s.engine.GetFlowRun(c.Request.Context(), id)
	if err == nil {
		c.JSON(http.StatusOK, detail)
		return
	}

	if errors.Is(err, store.ErrFlowRunNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %s", err.Error(), id),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrGetFlowRun, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) listFlowRuns(c *gin.Context) {
	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxListLimit {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  fmt.Sprintf("%s: %q", ErrInvalidLimit, raw),
				Status: http.StatusBadRequest,
			})
			return
		}
		limit = v
	}

	runs, err := s.engine.ListFlowRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrListFlowRuns, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.FlowRunsListResponse{
		FlowRuns: runs,
		Count:    len(runs),
	})
}
