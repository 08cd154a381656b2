package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var tagMessages = map[string]string{
	"required": "field is required",
	"email":    "invalid email format",
	"min":      "value is too short",
	"max":      "value is too long",
	"gt":       "value is too small",
	"oneof":    "value is not allowed",
}

// BindJSON decodes the request body into req and validates it. On failure it
// writes a 400 response listing the offending fields and returns false.
func BindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, &Response{
			Status:  "error",
			Message: "malformed request body",
			Data:    ErrorData{Code: apperrors.CodeBadRequest},
		})
		return false
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := tagMessages[e.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %s validation", e.Tag())
		}
		fields = append(fields, FieldError{Field: e.Field(), Message: msg})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, &Response{
		Status:  "error",
		Message: "validation failed",
		Data:    ErrorData{Code: apperrors.CodeBadRequest, Fields: fields},
	})
	return false
}
