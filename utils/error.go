package utils

import (
	"net/http"

	"gigbook/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	BookingID  string `json:"bookingId,omitempty"`
	Transition string `json:"transition,omitempty"`
	Details    string `json:"details,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetLogger().Error("Unhandled panic", zap.Any("error", err), zap.String("path", c.Request.URL.Path))

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "Internal Server Error",
					Code:    string(apperror.KindInternal),
					Details: "An unexpected error occurred. Please try again later.",
				})
			}
		}()
		c.Next()
	}
}

// RespondError writes err using the status mapped from its kind.
func RespondError(c *gin.Context, err error) {
	appErr := apperror.As(err)
	status := apperror.HTTPStatus(appErr.Kind)

	logger := GetLogger()
	if l, ok := c.Get("logger"); ok {
		if zl, ok := l.(*zap.Logger); ok {
			logger = zl
		}
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("code", string(appErr.Kind)), zap.String("message", appErr.Message))
	}

	msg := appErr.Message
	if appErr.Kind == apperror.KindInternal {
		// Foreign error text stays in the logs.
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      msg,
		Code:       string(appErr.Kind),
		BookingID:  appErr.BookingID,
		Transition: appErr.Transition,
	})
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, code apperror.Kind, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: string(code)})
}
