package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/lineage-engine/internal/lineage"
	"github.com/feichai0017/lineage-engine/internal/models"
	"github.com/feichai0017/lineage-engine/pkg/logger"
)

type LineageHandler struct {
	service lineage.LineageManager
	logger  logger.Logger
}

// IngestRequest registers a document arriving from the processing pipeline.
type IngestRequest struct {
	Name        string  `json:"name" binding:"required"`
	StoragePath string  `json:"storagePath"`
	FullText    *string `json:"fullText"`
	Folder      string  `json:"folder"`
	Category    string  `json:"category"`
}

type IngestResponse struct {
	DocumentID string `json:"documentId"`
	TaskID     string `json:"taskId"`
	Version    int    `json:"version"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

type LinkRequest struct {
	NewDocumentID string `json:"newDocumentId" binding:"required"`
	OldDocumentID string `json:"oldDocumentId" binding:"required"`
}

type CandidateResponse struct {
	CandidateID   string  `json:"candidateId"`
	NewDocumentID string  `json:"newDocumentId"`
	OldDocumentID string  `json:"oldDocumentId"`
	Score         float64 `json:"score"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
}

type LinkResponse struct {
	NewDocumentID string  `json:"newDocumentId"`
	OldDocumentID string  `json:"oldDocumentId"`
	NewVersion    int     `json:"newVersion"`
	Confidence    float64 `json:"confidence"`
	Relation      string  `json:"relation"`
}

type DocumentResponse struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Version    int    `json:"version"`
	Status     string `json:"status"`
	Folder     string `json:"folder"`
	ModifiedAt string `json:"modifiedAt"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewLineageHandler(service lineage.LineageManager, logger logger.Logger) *LineageHandler {
	return &LineageHandler{
		service: service,
		logger:  logger,
	}
}

// IngestDocument registers a document and queues version detection for it.
func (h *LineageHandler) IngestDocument(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid ingest request", err)
		return
	}

	doc, task, err := h.service.Ingest(c.Request.Context(), &models.Document{
		Name:        req.Name,
		StoragePath: req.StoragePath,
		FullText:    req.FullText,
		Folder:      req.Folder,
		Category:    req.Category,
	})
	if err != nil {
		h.handleServiceError(c, "Failed to ingest document", err)
		return
	}

	c.JSON(http.StatusAccepted, IngestResponse{
		DocumentID: doc.ID,
		TaskID:     task.ID,
		Version:    doc.Version,
		Status:     string(doc.Status),
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
	})
}

// DetectCandidate runs detection synchronously for one document.
func (h *LineageHandler) DetectCandidate(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	candidate, err := h.service.DetectCandidate(c.Request.Context(), documentID)
	if err != nil {
		h.handleServiceError(c, "Failed to detect candidate", err)
		return
	}
	if candidate == nil {
		c.JSON(http.StatusOK, gin.H{
			"candidate": nil,
			"message":   "No predecessor above the similarity threshold",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"candidate": candidateResponse(candidate)})
}

// ConfirmCandidate applies the version transition for a pending candidate.
func (h *LineageHandler) ConfirmCandidate(c *gin.Context) {
	candidateID := c.Param("candidateId")
	if candidateID == "" {
		h.handleError(c, http.StatusBadRequest, "Candidate ID is required", nil)
		return
	}

	link, err := h.service.Confirm(c.Request.Context(), candidateID)
	if err != nil {
		h.handleServiceError(c, "Failed to confirm candidate", err)
		return
	}

	c.JSON(http.StatusOK, linkResponse(link))
}

// DismissCandidate rejects a pending candidate.
func (h *LineageHandler) DismissCandidate(c *gin.Context) {
	candidateID := c.Param("candidateId")
	if candidateID == "" {
		h.handleError(c, http.StatusBadRequest, "Candidate ID is required", nil)
		return
	}

	if err := h.service.Dismiss(c.Request.Context(), candidateID); err != nil {
		h.handleServiceError(c, "Failed to dismiss candidate", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Candidate dismissed",
		"candidateId": candidateID,
	})
}

// ManualLink links two documents directly, bypassing detection.
func (h *LineageHandler) ManualLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid link request", err)
		return
	}

	link, err := h.service.ManualLink(c.Request.Context(), req.NewDocumentID, req.OldDocumentID)
	if err != nil {
		h.handleServiceError(c, "Failed to link documents", err)
		return
	}

	c.JSON(http.StatusOK, linkResponse(link))
}

// GetDiff returns the line diff between two document versions.
func (h *LineageHandler) GetDiff(c *gin.Context) {
	oldID := c.Param("oldId")
	newID := c.Param("newId")
	if oldID == "" || newID == "" {
		h.handleError(c, http.StatusBadRequest, "Both document IDs are required", nil)
		return
	}

	hunks, err := h.service.GetDiff(c.Request.Context(), oldID, newID)
	if err != nil {
		h.handleServiceError(c, "Failed to compute diff", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"oldDocumentId": oldID,
		"newDocumentId": newID,
		"hunks":         hunks,
	})
}

// GetVersionChain returns the full version history, oldest first.
func (h *LineageHandler) GetVersionChain(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	chain, err := h.service.GetVersionChain(c.Request.Context(), documentID)
	if err != nil {
		h.handleServiceError(c, "Failed to load version chain", err)
		return
	}

	versions := make([]DocumentResponse, len(chain))
	for i, doc := range chain {
		versions[i] = DocumentResponse{
			DocumentID: doc.ID,
			Name:       doc.Name,
			Version:    doc.Version,
			Status:     string(doc.Status),
			Folder:     doc.Folder,
			ModifiedAt: doc.ModifiedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// GetTaskStatus reports the state of a queued detection task.
func (h *LineageHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	status, err := h.service.GetTaskStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleServiceError(c, "Failed to get task status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":      status.TaskID,
		"status":      status.Status,
		"candidateId": status.CandidateID,
		"error":       status.Error,
	})
}

func candidateResponse(c *models.PendingCandidate) CandidateResponse {
	return CandidateResponse{
		CandidateID:   c.ID,
		NewDocumentID: c.NewID,
		OldDocumentID: c.OldID,
		Score:         c.Score,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

func linkResponse(link *models.VersionLink) LinkResponse {
	return LinkResponse{
		NewDocumentID: link.Promoted.ID,
		OldDocumentID: link.Archived.ID,
		NewVersion:    link.Promoted.Version,
		Confidence:    link.Edge.Confidence,
		Relation:      string(link.Edge.Kind),
	}
}

// handleServiceError maps domain errors onto HTTP statuses.
func (h *LineageHandler) handleServiceError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrSelfReference), errors.Is(err, models.ErrUnprocessable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvariantViolation):
		status = http.StatusInternalServerError
	}
	h.handleError(c, status, message, err)
}

func (h *LineageHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}
