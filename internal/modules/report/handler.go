package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/appsight/core/internal/modules/store"
	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/pagination"
	"github.com/appsight/core/internal/pkg/reportkey"
	"github.com/appsight/core/internal/pkg/response"
	"github.com/appsight/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const taskTypeGenerate = "report_generate"

// Handler exposes the report surface over HTTP.
type Handler struct {
	coordinator *Coordinator
	tasks       *taskqueue.Service
	logger      *zap.Logger
}

func NewHandler(coordinator *Coordinator, tasks *taskqueue.Service, logger *zap.Logger) *Handler {
	return &Handler{coordinator: coordinator, tasks: tasks, logger: logger}
}

// RegisterRoutes mounts the report endpoints. admin guards the
// destructive ones.
func (h *Handler) RegisterRoutes(r gin.IRouter, admin gin.HandlerFunc) {
	reports := r.Group("/reports")
	{
		reports.POST("/generate", h.generateStream)
		reports.POST("/task", h.createTask)
		reports.GET("", h.list)
		reports.GET("/:key", h.get)
		reports.DELETE("/:key", admin, h.invalidate)
	}

	tasks := r.Group("/tasks")
	{
		tasks.GET("", h.listTasks)
		tasks.GET("/:id", h.getTask)
		tasks.POST("/:id/cancel", h.cancelTask)
		tasks.DELETE("/:id", admin, h.deleteTask)
	}
}

type generateRequest struct {
	URL   string   `json:"url"`
	URLs  []string `json:"urls"`
	Force bool     `json:"force"`
}

func (req *generateRequest) validate() error {
	if req.URL == "" && len(req.URLs) == 0 {
		return errors.New("url or urls is required")
	}
	if req.URL != "" && len(req.URLs) > 0 {
		return errors.New("url and urls are mutually exclusive")
	}
	return nil
}

// generateStream serves a report over SSE, replaying cached content or
// forwarding live provider tokens.
func (h *Handler) generateStream(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType, data string) {
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data))
		c.Writer.Flush()
	}
	onChunk := func(cached bool, chunk string) {
		chunkJSON, _ := json.Marshal(chunk)
		if cached {
			sendEvent("cached", string(chunkJSON))
		} else {
			sendEvent("token", string(chunkJSON))
		}
	}

	var key reportkey.Key
	var err error
	if req.URL != "" {
		var report *store.AnalysisReport
		report, err = h.coordinator.GetOrGenerateAnalysis(c.Request.Context(), req.URL, req.Force, onChunk)
		if report != nil {
			key = report.Key
		}
	} else {
		var report *store.ComparisonReport
		report, err = h.coordinator.GetOrGenerateComparison(c.Request.Context(), req.URLs, req.Force, onChunk)
		if report != nil {
			key = report.Key
		}
	}
	if err != nil {
		errJSON, _ := json.Marshal(err.Error())
		sendEvent("error", string(errJSON))
		return
	}

	doneJSON, _ := json.Marshal(gin.H{
		"key":        key.String(),
		"share_link": store.ShareLink(h.coordinator.opts.BaseURL, key),
	})
	sendEvent("done", string(doneJSON))
}

func (h *Handler) list(c *gin.Context) {
	page := pagination.FromContext(c)
	q := store.ListQuery{
		Page:       page.Page,
		Size:       page.Size,
		SortBy:     store.SortField(c.DefaultQuery("sort_by", "created_at")),
		Descending: strings.EqualFold(c.DefaultQuery("order", "desc"), "desc"),
		Search:     strings.TrimSpace(c.Query("q")),
	}

	items, total, err := h.coordinator.List(c.Request.Context(), q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pagination.Meta(total, page))
}

func (h *Handler) get(c *gin.Context) {
	key, ok := reportkey.Parse(c.Param("key"))
	if !ok {
		response.BadRequest(c, "invalid report key")
		return
	}

	resolved, err := h.coordinator.Get(c.Request.Context(), key)
	if errors.Is(err, fault.ErrNotFound) {
		response.NotFound(c)
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, resolved)
}

func (h *Handler) invalidate(c *gin.Context) {
	key, ok := reportkey.Parse(c.Param("key"))
	if !ok {
		response.BadRequest(c, "invalid report key")
		return
	}
	if err := h.coordinator.Invalidate(c.Request.Context(), key); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// createTask queues a generation instead of streaming it, for clients
// that cannot hold a connection open.
func (h *Handler) createTask(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var key reportkey.Key
	if req.URL != "" {
		if _, err := parseListing(req.URL); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		key = reportkey.ForURL(req.URL)
	} else {
		for _, raw := range req.URLs {
			if _, err := parseListing(raw); err != nil {
				response.BadRequest(c, err.Error())
				return
			}
		}
		key = reportkey.ForComparison(req.URLs)
	}

	task, err := h.tasks.Enqueue(c.Request.Context(), taskTypeGenerate, req, key.String())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task.Status == taskqueue.TaskPending {
		go h.executeTask(context.Background(), task.ID, req)
	}
	response.Accepted(c, task)
}

func (h *Handler) executeTask(ctx context.Context, taskID string, req generateRequest) {
	if err := h.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		h.logger.Warn("task status update failed", zap.String("task", taskID), zap.Error(err))
	}

	var key reportkey.Key
	var err error
	if req.URL != "" {
		var report *store.AnalysisReport
		report, err = h.coordinator.GetOrGenerateAnalysis(ctx, req.URL, req.Force, nil)
		if report != nil {
			key = report.Key
		}
	} else {
		var report *store.ComparisonReport
		report, err = h.coordinator.GetOrGenerateComparison(ctx, req.URLs, req.Force, nil)
		if report != nil {
			key = report.Key
		}
	}

	if err != nil {
		if uerr := h.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error()); uerr != nil {
			h.logger.Warn("task status update failed", zap.String("task", taskID), zap.Error(uerr))
		}
		return
	}
	result := gin.H{
		"key":        key.String(),
		"share_link": store.ShareLink(h.coordinator.opts.BaseURL, key),
	}
	if uerr := h.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, result, ""); uerr != nil {
		h.logger.Warn("task status update failed", zap.String("task", taskID), zap.Error(uerr))
	}
}

func (h *Handler) listTasks(c *gin.Context) {
	page := pagination.FromContext(c)

	var taskType *string
	if v := c.Query("type"); v != "" {
		taskType = &v
	}
	var status *taskqueue.TaskStatus
	if v := c.Query("status"); v != "" {
		s := taskqueue.TaskStatus(v)
		status = &s
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), page.Page, page.Size, taskType, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, pagination.Meta(total, page))
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "task not found")
		return
	}
	response.OK(c, task)
}

func (h *Handler) cancelTask(c *gin.Context) {
	if err := h.tasks.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

func (h *Handler) deleteTask(c *gin.Context) {
	if err := h.tasks.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		response.NotFoundMsg(c, "task not found")
		return
	}
	response.NoContent(c)
}
