package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/AnTengye/contractdash/backend/middleware"
	"github.com/AnTengye/contractdash/backend/model"
	"github.com/AnTengye/contractdash/backend/pkg/logger"
	"github.com/AnTengye/contractdash/backend/service"
	"github.com/gin-gonic/gin"
)

// allowedExtensions are the document types the analysis API accepts
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

type DashboardHandler struct {
	registry  *service.Registry
	maxUpload int64
}

// NewDashboardHandler serves each caller the dashboard of their tenant.
// maxUpload is the largest accepted document in bytes.
func NewDashboardHandler(registry *service.Registry, maxUpload int64) *DashboardHandler {
	return &DashboardHandler{registry: registry, maxUpload: maxUpload}
}

func (h *DashboardHandler) dashboard(c *gin.Context) *service.Dashboard {
	return h.registry.Get(middleware.GetTenant(c))
}

// Get returns the dashboard snapshot
func (h *DashboardHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard(c).Snapshot())
}

type configRequest struct {
	OpenAIAPIKey string `json:"openaiApiKey" binding:"required"`
	BaseURL      string `json:"baseUrl"`
}

// Configure stores the analysis API settings
func (h *DashboardHandler) Configure(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OpenAI API key is required"})
		return
	}

	d := h.dashboard(c)
	err := d.ConfigureAPI(model.APIConfig{
		OpenAIAPIKey: strings.TrimSpace(req.OpenAIAPIKey),
		BaseURL:      strings.TrimSpace(req.BaseURL),
	})
	if errors.Is(err, service.ErrAPIKeyMissing) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, d, "failed to save API settings", err)
}

type analysisTypeRequest struct {
	Type        string  `json:"type" binding:"required"`
	CustomQuery *string `json:"customQuery"`
}

// SetAnalysisType selects the analysis kind and optionally the custom query
func (h *DashboardHandler) SetAnalysisType(c *gin.Context) {
	var req analysisTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	d := h.dashboard(c)
	if _, err := model.ParseAnalysisKind(req.Type); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := d.SelectAnalysisType(req.Type)
	if req.CustomQuery != nil {
		err = errors.Join(err, d.SetCustomQuery(*req.CustomQuery))
	}
	h.respond(c, d, "failed to save analysis type", err)
}

type customQueryRequest struct {
	CustomQuery string `json:"customQuery"`
}

func (h *DashboardHandler) SetCustomQuery(c *gin.Context) {
	var req customQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	d := h.dashboard(c)
	h.respond(c, d, "failed to save custom query", d.SetCustomQuery(req.CustomQuery))
}

type tabRequest struct {
	Tab string `json:"tab" binding:"required"`
}

func (h *DashboardHandler) SetTab(c *gin.Context) {
	var req tabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	d := h.dashboard(c)
	err := d.SetActiveTab(req.Tab)
	if errors.Is(err, service.ErrInvalidTab) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, d, "failed to save active tab", err)
}

type uploadStateRequest struct {
	Minimized *bool `json:"minimized" binding:"required"`
}

// SetUploadState expands or minimizes the upload card
func (h *DashboardHandler) SetUploadState(c *gin.Context) {
	var req uploadStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	d := h.dashboard(c)
	h.respond(c, d, "failed to save upload state", d.SetUploadMinimized(*req.Minimized))
}

// Analyze sends the uploaded document to the analysis API and returns the
// refreshed snapshot
func (h *DashboardHandler) Analyze(c *gin.Context) {
	ctx := c.Request.Context()

	if h.maxUpload > 0 {
		// multipart overhead on top of the document
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF, DOCX and TXT files are allowed"})
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	// let the content decide when the client sent no useful type
	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}

	d := h.dashboard(c)
	_, err = d.Analyze(ctx, service.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		h.analysisFailure(c, err)
		return
	}

	// Analyze only logs persistence failures; Restored tells whether the result reached storage
	snap := d.Snapshot()
	c.JSON(http.StatusOK, snapshotResponse{Snapshot: snap, Persisted: snap.Restored})
}

func (h *DashboardHandler) analysisFailure(c *gin.Context, err error) {
	var apiErr *service.APIError
	switch {
	case errors.Is(err, service.ErrNotConfigured):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Please configure your API settings first"})
	case errors.Is(err, service.ErrAPIKeyMissing):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAnalysisInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message, "upstream_status": apiErr.StatusCode})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Analysis timed out"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// NewUpload discards the current result
func (h *DashboardHandler) NewUpload(c *gin.Context) {
	d := h.dashboard(c)
	h.respond(c, d, "failed to clear analysis result", d.NewUpload())
}

// ClearAll forgets the result and every setting of the tenant
func (h *DashboardHandler) ClearAll(c *gin.Context) {
	d := h.dashboard(c)
	err := d.ClearAll()
	logger.Info(c.Request.Context(), "dashboard cleared")
	h.respond(c, d, "failed to clear stored data", err)
}

func (h *DashboardHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.dashboard(c).History()})
}

func (h *DashboardHandler) ClearHistory(c *gin.Context) {
	err := h.dashboard(c).ClearHistory(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"history": []model.AnalysisRecord{}, "persisted": err == nil})
}

// StorageStatus reports whether the tenant's storage accepts writes
func (h *DashboardHandler) StorageStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"available": h.dashboard(c).StorageAvailable()})
}

// snapshotResponse is a snapshot plus whether the change reached storage.
// A change that did not is still applied for the rest of the session.
type snapshotResponse struct {
	service.Snapshot
	Persisted bool `json:"persisted"`
}

func (h *DashboardHandler) respond(c *gin.Context, d *service.Dashboard, msg string, err error) {
	if err != nil {
		logger.Warn(c.Request.Context(), msg, "error", err)
	}
	c.JSON(http.StatusOK, snapshotResponse{Snapshot: d.Snapshot(), Persisted: err == nil})
}
