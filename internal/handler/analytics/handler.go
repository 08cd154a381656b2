package analytics

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
	GetRegion(ctx context.Context, role model.Role, cellID string, ring int) (*model.RegionAnalytics, error)
	ListRegions(ctx context.Context, role model.Role, limit int) ([]*model.RegionStat, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	regions := r.Group("/analytics/regions", middleware.RequireCapability(model.CapViewRegionAnalytics))
	{
		regions.GET("", h.ListRegions)
		regions.GET("/:cell", h.GetRegion)
	}
}

func (h *Handler) GetRegion(c *gin.Context) {
	_, role, _ := handler.Identity(c)

	ring, err := queryInt(c, "ring", 0)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	result, err := h.svc.GetRegion(c.Request.Context(), role, c.Param("cell"), ring)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ListRegions(c *gin.Context) {
	_, role, _ := handler.Identity(c)

	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	stats, err := h.svc.ListRegions(c.Request.Context(), role, limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewBadRequest("invalid "+key, err)
	}
	return v, nil
}
