package middleware

import (
	stderrors "errors"
	"net/http"

	"huddle/internal/core/domain"
	"huddle/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ToAppError maps domain failures onto application error codes. Errors that
// already are AppErrors pass through.
func ToAppError(err error) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrUnauthorized):
		return errors.NewUnauthorizedError("unauthorized")
	case stderrors.Is(err, domain.ErrRoomFull):
		return errors.NewRoomFullError()
	case stderrors.Is(err, domain.ErrInvalidMessage):
		return errors.NewInvalidMessageError(err.Error())
	case stderrors.Is(err, domain.ErrInvalidRoom):
		return errors.NewInvalidInputError(err.Error())
	case stderrors.Is(err, domain.ErrStorage):
		return errors.NewStorageError(err)
	case stderrors.Is(err, domain.ErrConnectionNotFound):
		return errors.NewServiceUnavailableError("connection is closing")
	default:
		return errors.WrapError(err, errors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

// ErrorHandlerMiddleware handles application errors and returns appropriate HTTP responses
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := ToAppError(c.Errors.Last().Err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"error", appErr.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
			)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// NotFoundHandler reports unknown routes through the error handler.
func NotFoundHandler(c *gin.Context) {
	_ = c.Error(errors.NewNotFoundError("route " + c.Request.URL.Path))
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				appErr := errors.NewInternalError("internal server error")
				c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
					"error":   string(appErr.Code),
					"message": appErr.Message,
				})
			}
		}()

		c.Next()
	}
}
