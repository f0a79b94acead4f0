package history

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/threadmood/report"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page size limits for GET /api/v1/runs
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// APIServer serves run history over HTTP.
type APIServer struct {
	store *RunStore

	// AllowedOrigins restricts cross-origin callers. Empty allows any origin.
	AllowedOrigins []string
}

// NewAPIServer creates a new history API server.
func NewAPIServer(store *RunStore) *APIServer {
	return &APIServer{
		store: store,
	}
}

// SetupRouter configures the Gin router with all history API routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.Default()

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}
	if len(s.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.GET("/runs", s.HandleListRuns)
	api.GET("/runs/:id", s.HandleGetRun)
	api.GET("/runs/:id/rows", s.HandleGetRows)
	api.GET("/runs/:id/report.csv", s.HandleGetReport)
	api.DELETE("/runs/:id", s.HandleDeleteRun)

	return router
}

// ListRunsResponse represents the response for GET /api/v1/runs.
type ListRunsResponse struct {
	Runs  []Run `json:"runs"`
	Total int   `json:"total"`
}

// RowsResponse represents the response for GET /api/v1/runs/{id}/rows.
type RowsResponse struct {
	RunID uuid.UUID    `json:"run_id"`
	Rows  []report.Row `json:"rows"`
	Posts int          `json:"posts"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *APIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	default:
		slog.Error("History API request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// parseRunID reads the :id path parameter, writing a 400 response when it
// is not a UUID.
func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid run ID"))
		return uuid.Nil, false
	}
	return runID, true
}

// parseListFilter builds a RunFilter from query parameters.
func parseListFilter(c *gin.Context) (RunFilter, error) {
	filter := RunFilter{Limit: DefaultListLimit}

	if thread := c.Query("thread"); thread != "" {
		filter.ThreadURL = &thread
	}

	if status := c.Query("status"); status != "" {
		if status != StatusSucceeded && status != StatusFailed {
			return filter, ErrInvalidStatus
		}
		filter.Status = &status
	}

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > MaxListLimit {
			return filter, fmt.Errorf("limit must be between 1 and %d", MaxListLimit)
		}
		filter.Limit = limit
	}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// HandleListRuns handles GET /api/v1/runs.
func (s *APIServer) HandleListRuns(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	runs, err := s.store.ListRuns(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}

	c.JSON(http.StatusOK, ListRunsResponse{
		Runs:  runs,
		Total: len(runs),
	})
}

// HandleGetRun handles GET /api/v1/runs/{id}.
func (s *APIServer) HandleGetRun(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := s.store.GetRun(runID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// HandleGetRows handles GET /api/v1/runs/{id}/rows.
func (s *APIServer) HandleGetRows(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	rows, err := s.store.GetRows(runID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, RowsResponse{
		RunID: runID,
		Rows:  rows,
		Posts: report.TotalPosts(rows),
	})
}

// HandleGetReport handles GET /api/v1/runs/{id}/report.csv and renders the
// stored rows in the same format the CLI writes.
func (s *APIServer) HandleGetReport(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	rows, err := s.store.GetRows(runID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		s.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, runID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleDeleteRun handles DELETE /api/v1/runs/{id}.
func (s *APIServer) HandleDeleteRun(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteRun(runID); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
