package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/geoclinic/clinic-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// ErrorData is the data block of an error response.
type ErrorData struct {
	Code   apperrors.ErrorCode `json:"code"`
	Fields []FieldError        `json:"fields,omitempty"`
}

// RespondError maps err onto a status and writes the error envelope.
// Client errors keep their message; server errors are reported as
// "operation failed" with the numeric code and the cause is only logged.
func RespondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternal(err)
	}
	status := appErr.StatusCode()

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("code", int(appErr.Code)).
		Str("request_id", c.GetString(ContextRequestID)).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("request failed")

	message := appErr.Message
	if status >= http.StatusInternalServerError {
		message = "operation failed"
	}
	c.AbortWithStatusJSON(status, &Response{
		Status:  "error",
		Message: message,
		Data:    ErrorData{Code: appErr.Code},
	})
}
