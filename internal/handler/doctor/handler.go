package doctor

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/handler"
	"github.com/geoclinic/clinic-api/internal/middleware"
	"github.com/geoclinic/clinic-api/internal/model"
)

type Service interface {
	SetupProfile(ctx context.Context, userID int64, role model.Role, specialization string) (*model.Doctor, error)
	List(ctx context.Context) ([]*model.Doctor, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("", middleware.RequireCapability(model.CapListDoctors), h.ListDoctors)
		doctors.POST("/profile", middleware.RequireCapability(model.CapSetupDoctor), h.SetupProfile)
	}
}

func (h *Handler) SetupProfile(c *gin.Context) {
	userID, role, _ := handler.Identity(c)

	var req model.SetupDoctorRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	doctor, err := h.svc.SetupProfile(c.Request.Context(), userID, role, req.Specialization)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(doctor))
}

func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.svc.List(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(doctors))
}
