package appstore

import (
	"errors"
	"strconv"

	"github.com/appsight/core/internal/pkg/fault"
	"github.com/appsight/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

// Handler exposes the upstream search proxy over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	group := r.Group("/appstore")
	{
		group.GET("/providers", h.providers)
		group.GET("/search", h.search)
		group.GET("/apps/:id", h.details)
		group.GET("/apps/:id/reviews", h.reviews)
	}
}

func (h *Handler) providers(c *gin.Context) {
	response.OK(c, h.svc.Providers())
}

func (h *Handler) search(c *gin.Context) {
	provider := c.Query("provider")
	term := c.Query("term")
	if term == "" {
		term = c.Query("q")
	}
	if provider == "" || term == "" {
		response.BadRequest(c, "provider and term are required")
		return
	}

	listings, err := h.svc.Search(c.Request.Context(), provider, term)
	if errors.Is(err, fault.ErrInvalidInput) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, listings)
}

func (h *Handler) details(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		response.BadRequest(c, "provider is required")
		return
	}

	details, err := h.svc.Details(c.Request.Context(), provider, c.Param("id"))
	if errors.Is(err, fault.ErrInvalidInput) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, details)
}

func (h *Handler) reviews(c *gin.Context) {
	provider := c.Query("provider")
	if provider == "" {
		response.BadRequest(c, "provider is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	reviews, err := h.svc.Reviews(c.Request.Context(), provider, c.Param("id"), limit)
	if errors.Is(err, fault.ErrInvalidInput) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, reviews)
}
