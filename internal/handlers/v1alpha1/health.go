package v1alpha1

import (
	"net/http"

	api "github.com/statspub/publisher/api/v1alpha1"
)

// (GET /health)
func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.healthSrv.Check(r.Context()); err != nil {
		respond(w, r, http.StatusServiceUnavailable, api.Error{Message: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}
