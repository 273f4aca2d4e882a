package v1alpha1

import (
	"net/http"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/auth"
	"github.com/statspub/publisher/internal/handlers/v1alpha1/mappers"
)

// (GET /api/v1/releases/{id}/stage-status)
func (h *ServiceHandler) GetStageStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.releaseStatusSrv.GetStageStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.StageStatusToApi(status))
}

// (GET /api/v1/releases/{id}/status-history)
func (h *ServiceHandler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.releaseStatusSrv.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReleaseStatusListToApi(history))
}

// (POST /api/v1/releases/{id}/publish)
func (h *ServiceHandler) PublishRelease(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var form api.PublishRequest
	if err := decodeBody(r, &form, true); err != nil {
		writeError(w, r, err)
		return
	}

	user := auth.MustHaveUser(r.Context())
	h.logger.WithContext(r.Context()).
		Operation("publish_release").
		WithUUID("release_version_id", id).
		WithString("user", user.Username).
		WithBool("immediate", form.Immediate).
		Build().
		Step("requested").
		Log()

	if err := h.releaseStatusSrv.RequestPublishing(r.Context(), id, form.Immediate); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// (POST /api/v1/releases/{id}/retry-stage)
func (h *ServiceHandler) RetryStage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var form api.RetryStageRequest
	if err := decodeBody(r, &form, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.publishValidator.Struct(form); err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.releaseStatusSrv.RetryStage(r.Context(), id, form.Stage)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReleaseStatusToApi(*status))
}

// (POST /api/v1/releases/{id}/retry-publishing)
func (h *ServiceHandler) RetryPublishing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.releaseStatusSrv.RetryReleasePublishing(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// (POST /api/v1/releases/{id}/cancel)
func (h *ServiceHandler) CancelScheduledPublishing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.releaseStatusSrv.CancelScheduledPublishing(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReleaseStatusToApi(*status))
}

// (GET /api/v1/publisher/statistics)
func (h *ServiceHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.releaseStatusSrv.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.StatisticsToApi(stats))
}
