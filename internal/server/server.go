package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/graphsync/internal/core/apperr"
	"github.com/agenthands/graphsync/internal/core/events"
	"github.com/agenthands/graphsync/internal/core/ingest"
	"github.com/agenthands/graphsync/internal/core/query"
	"github.com/agenthands/graphsync/internal/core/syncjobs"
	"github.com/agenthands/graphsync/internal/core/webhook"
	"github.com/agenthands/graphsync/internal/logger"
	"github.com/agenthands/graphsync/internal/metrics"
)

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte, signature string) (webhook.Result, error)
}

type SyncService interface {
	Start(ctx context.Context, req syncjobs.SyncRequest) (syncjobs.SyncResult, error)
	Cancel(ctx context.Context, provider, connectionID string) error
}

type Knowledge interface {
	Analyze(ctx context.Context, req query.Request) (query.Result, error)
	Status(ctx context.Context, projectID string) (query.Status, error)
	ThreadContext(ctx context.Context, threadID string, opts query.ThreadOptions) (string, error)
	CreateThread(ctx context.Context, projectID, userID string, metadata map[string]interface{}) (string, error)
}

type InitialIngester interface {
	Initial(ctx context.Context, orgID, projectID string) ingest.InitialResult
}

type Server struct {
	Webhooks  WebhookProcessor
	Syncs     SyncService
	Knowledge Knowledge
	Ingestion InitialIngester
	Metrics   *metrics.Metrics
	Log       *logger.Logger
}

func (s *Server) SetupRouter() *gin.Engine {
	if s.Log == nil {
		s.Log = logger.Nop()
	}
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(s.Log))

	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	r.POST("/webhooks/nango", s.Webhook)
	r.HEAD("/webhooks/nango", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.POST("/sync", s.StartSync)
	r.DELETE("/sync", s.CancelSync)

	r.POST("/knowledge", s.QueryKnowledge)
	r.PUT("/knowledge", s.IngestKnowledge)
	r.GET("/knowledge", s.KnowledgeStatus)

	return r
}

// writeError maps the error taxonomy onto a JSON error response.
func (s *Server) writeError(c *gin.Context, err error) {
	status := apperr.StatusCode(err)

	var validation *apperr.ValidationError
	var conflict *apperr.ConflictError
	switch {
	case errors.As(err, &validation):
		c.JSON(status, gin.H{"error": "Validation error", "details": validation.Fields})
	case errors.As(err, &conflict):
		c.JSON(status, gin.H{"success": false, "message": "Sync already in progress", "syncId": conflict.ExistingID})
	case errors.Is(err, apperr.ErrRateLimited):
		c.JSON(status, gin.H{"error": "Too many requests"})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(status, gin.H{"error": "Unauthorized"})
	case status >= http.StatusInternalServerError:
		s.Log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "Internal server error"})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, apperr.Validation("body", "unreadable body"))
		return
	}
	res, err := s.Webhooks.Process(c.Request.Context(), body, c.GetHeader(events.SignatureHeader))
	if err != nil {
		s.Log.Error("Webhook processing failed", "error", err)
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) StartSync(c *gin.Context) {
	var req syncjobs.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("body", "invalid request: %v", err))
		return
	}
	res, err := s.Syncs.Start(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"syncId":        res.SyncID,
		"status":        res.Status,
		"message":       res.Message,
		"estimatedTime": res.EstimatedTime,
	})
}

func (s *Server) CancelSync(c *gin.Context) {
	provider := c.Query("provider")
	connectionID := c.Query("connectionId")
	if provider == "" || connectionID == "" {
		s.writeError(c, apperr.Validation("connectionId", "provider and connectionId query parameters are required"))
		return
	}
	if err := s.Syncs.Cancel(c.Request.Context(), provider, connectionID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Sync cancelled"})
}

type threadContextRequest struct {
	ThreadID  string  `json:"threadId"`
	Mode      string  `json:"mode"`
	MinRating float64 `json:"minRating"`
}

type createThreadRequest struct {
	CreateThread bool                   `json:"createThread"`
	ProjectID    string                 `json:"projectId"`
	UserID       string                 `json:"userId"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// QueryKnowledge serves thread context, thread creation and knowledge queries from one
// endpoint, chosen by the body's threadId and createThread fields.
func (s *Server) QueryKnowledge(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, apperr.Validation("body", "unreadable body"))
		return
	}
	var probe struct {
		ThreadID     string `json:"threadId"`
		CreateThread bool   `json:"createThread"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		s.writeError(c, apperr.Validation("body", "invalid JSON: %v", err))
		return
	}
	ctx := c.Request.Context()

	switch {
	case probe.ThreadID != "":
		var req threadContextRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(c, apperr.Validation("body", "invalid JSON: %v", err))
			return
		}
		out, err := s.Knowledge.ThreadContext(ctx, req.ThreadID, query.ThreadOptions{Mode: req.Mode, MinRating: req.MinRating})
		if err != nil {
			s.writeError(c, err)
			return
		}
		mode := req.Mode
		if mode == "" {
			mode = query.ModeSummarized
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "context": out, "threadId": req.ThreadID, "mode": mode})

	case probe.CreateThread:
		var req createThreadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(c, apperr.Validation("body", "invalid JSON: %v", err))
			return
		}
		threadID, err := s.Knowledge.CreateThread(ctx, req.ProjectID, req.UserID, req.Metadata)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"threadId":  threadID,
			"projectId": req.ProjectID,
			"message":   "Thread created successfully",
		})

	default:
		var req query.Request
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(c, apperr.Validation("body", "invalid JSON: %v", err))
			return
		}
		res, err := s.Knowledge.Analyze(ctx, req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "context": res.Value(), "query": req.Query, "type": req.Type})
	}
}

type ingestionRequest struct {
	ProjectID      string `json:"projectId"`
	OrganizationID string `json:"organizationId"`
	Type           string `json:"type"`
	Provider       string `json:"provider"`
	Since          string `json:"since"`
}

func (r ingestionRequest) validate() error {
	var fields []apperr.FieldError
	if strings.TrimSpace(r.ProjectID) == "" {
		fields = append(fields, apperr.FieldError{Field: "projectId", Message: "required"})
	}
	if strings.TrimSpace(r.OrganizationID) == "" {
		fields = append(fields, apperr.FieldError{Field: "organizationId", Message: "required"})
	}
	if r.Type != "initial" && r.Type != "incremental" {
		fields = append(fields, apperr.FieldError{Field: "type", Message: "must be initial or incremental"})
	}
	if r.Type == "incremental" && r.Provider == "" {
		fields = append(fields, apperr.FieldError{Field: "provider", Message: "required for incremental ingestion"})
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Message: "invalid ingestion request", Fields: fields}
	}
	return nil
}

// IngestKnowledge runs an initial ingestion inline, or triggers an incremental sync whose
// data arrives later through webhooks.
func (s *Server) IngestKnowledge(c *gin.Context) {
	var req ingestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.Validation("body", "invalid request: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	if req.Type == "initial" {
		result := s.Ingestion.Initial(ctx, req.OrganizationID, req.ProjectID)
		if err := result.Err(); err != nil {
			s.Log.Warn("Initial ingestion finished with failures", "projectId", req.ProjectID, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": result.Err() == nil,
			"type":    "initial",
			"graphId": result.GraphID,
			"results": result.Results,
			"message": "Initial ingestion completed. Knowledge graph is being built.",
		})
		return
	}

	res, err := s.Syncs.Start(ctx, syncjobs.SyncRequest{
		Provider:     req.Provider,
		ConnectionID: req.OrganizationID + "_" + req.ProjectID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.Log.Info("Incremental sync triggered", "projectId", req.ProjectID, "provider", req.Provider, "since", req.Since)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"type":     "incremental",
		"provider": req.Provider,
		"syncId":   res.SyncID,
		"message":  "Incremental sync triggered. Data will be received via webhooks.",
	})
}

func (s *Server) KnowledgeStatus(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing projectId parameter"})
		return
	}
	st, err := s.Knowledge.Status(c.Request.Context(), projectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"projectId":   st.ProjectID,
		"graphId":     st.GraphID,
		"initialized": st.Initialized,
		"status":      st.Status,
		"message":     st.Message,
	})
}
