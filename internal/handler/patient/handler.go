package patient

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geoclinic/clinic-api/internal/handler"
	"github.com/geoclinic/clinic-api/internal/middleware"
	"github.com/geoclinic/clinic-api/internal/model"
)

type Service interface {
	SetupProfile(ctx context.Context, userID int64, role model.Role, lat, lon float64) (*model.Patient, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("/profile", middleware.RequireCapability(model.CapSetupPatient), h.SetupProfile)
	}
}

func (h *Handler) SetupProfile(c *gin.Context) {
	userID, role, _ := handler.Identity(c)

	var req model.SetupPatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.svc.SetupProfile(c.Request.Context(), userID, role, *req.Latitude, *req.Longitude)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(model.SetupPatientResponse{
		PatientID: patient.ID,
		CellID:    patient.CellID,
	}))
}
