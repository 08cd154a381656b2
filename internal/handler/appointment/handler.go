package appointment

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/handler"
	"github.com/geoclinic/clinic-api/internal/middleware"
	"github.com/geoclinic/clinic-api/internal/model"
)

type Service interface {
	CreateAppointment(ctx context.Context, userID, doctorID int64, scheduledAt time.Time) (*model.Appointment, error)
	ListMyAppointments(ctx context.Context, userID int64, role model.Role) ([]*model.Appointment, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", middleware.RequireCapability(model.CapBookAppointment), h.CreateAppointment)
		appointments.GET("/my", middleware.RequireCapability(model.CapListOwnAppointments), h.ListMyAppointments)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	userID, _, _ := handler.Identity(c)

	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appointment, err := h.svc.CreateAppointment(c.Request.Context(), userID, req.DoctorID, req.ScheduledAt)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(appointment))
}

func (h *Handler) ListMyAppointments(c *gin.Context) {
	userID, role, _ := handler.Identity(c)

	appointments, err := h.svc.ListMyAppointments(c.Request.Context(), userID, role)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appointments))
}
