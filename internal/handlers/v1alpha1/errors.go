package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/handlers/validator"
	"github.com/statspub/publisher/internal/service"
)

// writeError maps service errors to their HTTP status. Anything unknown is an
// internal error and its message is not leaked.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := api.Error{Message: "internal server error"}

	switch e := err.(type) {
	case *service.ErrResourceNotFound, *service.ErrDataSetNotQueryable:
		status = http.StatusNotFound
		body.Message = err.Error()
	case *service.ErrRetryRejected, *service.ErrCancelRejected:
		status = http.StatusConflict
		body.Message = err.Error()
	case *service.ErrInvalidStage, *service.ErrInvalidRequest:
		status = http.StatusBadRequest
		body.Message = err.Error()
	case *validator.ErrInvalidRequest:
		status = http.StatusBadRequest
		body.Message = err.Error()
		body.Reasons = e.Fields
	case *service.ErrInvalidQuery:
		status = http.StatusBadRequest
		body.Message = err.Error()
		body.Reasons = e.Items
	case *service.ErrReleaseNotPublishable:
		status = http.StatusBadRequest
		body.Message = err.Error()
		body.Reasons = e.Reasons
	default:
		zap.S().Named("handlers").Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}
