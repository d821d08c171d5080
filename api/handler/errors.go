package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/models"
)

// asAdError returns err as an *AdError. Anything else becomes an internal
// error whose cause stays out of the response.
func asAdError(err error) *models.AdError {
	var adErr *models.AdError
	if errors.As(err, &adErr) {
		return adErr
	}
	return models.NewAdError(models.ErrCodeInternal, models.MsgServerError, err)
}

// respondError writes {"error": message} with the status for the error code
// and the code in the X-Error-Code header. lang selects friendly messages.
func respondError(c *gin.Context, err error, lang string) {
	adErr := asAdError(err)
	status := mapErrorToStatus(adErr)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "code", adErr.Code, "error", adErr)
	} else {
		slog.Info("request rejected", "path", c.FullPath(), "code", adErr.Code, "error", adErr)
	}
	c.Header(middleware.ErrorCodeHeader, adErr.Code)
	c.JSON(status, models.ErrorResponse{Error: models.UserMessage(adErr, lang)})
}

// statusClientClosedRequest is the nginx convention for a caller that hung
// up before the response was ready.
const statusClientClosedRequest = 499

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.AdError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeVideoNotFound:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeQuotaExceeded, models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation, models.ErrCodeDownloadFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodeEngineUnavailable:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeNavTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeCanceled:
		return statusClientClosedRequest // 499
	default:
		return http.StatusInternalServerError // 500
	}
}
