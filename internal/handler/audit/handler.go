package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/handler"
	"github.com/geoclinic/clinic-api/internal/middleware"
	"github.com/geoclinic/clinic-api/internal/model"
	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

type Service interface {
	List(ctx context.Context, role model.Role, filter model.AuditFilter) ([]*model.AuditLog, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", middleware.RequireCapability(model.CapViewAuditLogs), h.ListLogs)
}

// ListLogs supports filtering by user_id, action and entity_type, paged
// with limit and offset.
func (h *Handler) ListLogs(c *gin.Context) {
	_, role, _ := handler.Identity(c)

	filter := model.AuditFilter{
		Action:     c.Query("action"),
		EntityType: c.Query("entity_type"),
	}
	var err error
	if filter.UserID, err = queryInt64(c, "user_id"); err != nil {
		handler.RespondError(c, err)
		return
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	offset, err := queryInt64(c, "offset")
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	filter.Limit, filter.Offset = int(limit), int(offset)

	logs, err := h.service.List(c.Request.Context(), role, filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}

// queryInt64 parses a non-negative query parameter; absent means zero.
func queryInt64(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperrors.NewBadRequest("invalid "+key, err)
	}
	return v, nil
}
