package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/dispatcher"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/monitor"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/normalize"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/registry"
	"github.com/jonesrussell/north-cloud/fleet-monitor/internal/scraper"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error    string              `json:"error"`
	Category dispatcher.Category `json:"category,omitempty"`
	Details  string              `json:"details,omitempty"`
}

var categoryStatus = map[dispatcher.Category]int{
	dispatcher.CategoryPrecondition:  http.StatusConflict,
	dispatcher.CategoryInFlight:      http.StatusConflict,
	dispatcher.CategoryPermission:    http.StatusForbidden,
	dispatcher.CategoryNotConfigured: http.StatusNotImplemented,
	dispatcher.CategoryUnavailable:   http.StatusServiceUnavailable,
	dispatcher.CategoryFailed:        http.StatusBadGateway,
}

// statusFor maps a service error onto a response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownSource), errors.Is(err, monitor.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, dispatcher.ErrDiscarded):
		return http.StatusServiceUnavailable
	}

	if category, ok := dispatcher.CategoryOf(err); ok {
		if status, known := categoryStatus[category]; known {
			return status
		}
	}

	switch {
	case scraper.IsTransport(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, normalize.ErrSchema):
		return http.StatusBadGateway
	}
	if _, ok := scraper.StatusCode(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), errorBody(err))
}

func errorBody(err error) ErrorResponse {
	body := ErrorResponse{Error: err.Error()}
	var ce *dispatcher.CommandError
	if errors.As(err, &ce) {
		body.Error = ce.Message
		body.Category = ce.Category
		if ce.Err != nil && ce.Err.Error() != ce.Message {
			body.Details = ce.Err.Error()
		}
	}
	return body
}

func badRequest(c *gin.Context, msg string, err error) {
	body := ErrorResponse{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
