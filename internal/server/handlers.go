package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/authz"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// decideRequest is the decide endpoint's request body. A present
// attributes object selects the extended schema, even when empty.
type decideRequest struct {
	Subject    string                 `json:"subject" binding:"required"`
	Resource   string                 `json:"resource" binding:"required"`
	Action     string                 `json:"action" binding:"required"`
	Attributes map[string]interface{} `json:"attributes"`
}

// decideResponse is the decide endpoint's response body.
type decideResponse struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason"`
	SnapshotVersion string   `json:"snapshot_version,omitempty"`
	Cached          bool     `json:"cached,omitempty"`
	MatchedRules    int      `json:"matched_rules"`
	Errors          []string `json:"errors,omitempty"`
}

// reloadResponse is the reload endpoint's response body.
type reloadResponse struct {
	SnapshotVersion string   `json:"snapshot_version"`
	BasicRules      int      `json:"basic_rules"`
	ExtendedRules   int      `json:"extended_rules"`
	SkippedRows     []string `json:"skipped_rows,omitempty"`
}

// handleDecide answers one authorization question.
func (s *Server) handleDecide(c *gin.Context) {
	var body decideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &authz.Request{
		Subject:    body.Subject,
		Resource:   body.Resource,
		Action:     body.Action,
		Attributes: body.Attributes,
	}

	decision, err := s.enforcer.Decide(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, authz.ErrNoSubject), errors.Is(err, authz.ErrSchemaNotDeclared):
			status = http.StatusBadRequest
		case errors.Is(err, authz.ErrSnapshotNotLoaded):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := decideResponse{
		Allowed:         decision.Allowed,
		Reason:          string(decision.Reason),
		SnapshotVersion: decision.SnapshotVersion,
		Cached:          decision.Cached,
		MatchedRules:    len(decision.MatchedRules),
	}
	for _, evalErr := range decision.Errors {
		resp.Errors = append(resp.Errors, evalErr.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// handleReload rebuilds the snapshot from the policy store.
func (s *Server) handleReload(c *gin.Context) {
	report, err := s.enforcer.Reload(c.Request.Context())
	if err != nil {
		s.logger.Error("reload failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := reloadResponse{
		SnapshotVersion: report.SnapshotVersion,
		BasicRules:      report.BasicRules,
		ExtendedRules:   report.ExtendedRules,
	}
	for _, rowErr := range report.Skipped {
		resp.SkippedRows = append(resp.SkippedRows, rowErr.Error())
	}

	c.JSON(http.StatusOK, resp)
}

// handleHealth reports readiness: healthy once a snapshot is installed.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.enforcer.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no snapshot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"snapshot_version": snap.Version(),
	})
}
