package v1alpha1

import (
	"net/http"
	"time"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/auth"
	"github.com/statspub/publisher/internal/handlers/v1alpha1/mappers"
	"github.com/statspub/publisher/internal/store/model"
)

// (POST /api/v1/releases)
func (h *ServiceHandler) CreateReleaseVersion(w http.ResponseWriter, r *http.Request) {
	var form api.ReleaseVersionCreate
	if err := decodeBody(r, &form, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.releaseValidator.Struct(form); err != nil {
		writeError(w, r, err)
		return
	}

	user := auth.MustHaveUser(r.Context())
	tracer := h.logger.WithContext(r.Context()).
		Operation("create_release_version").
		WithString("user", user.Username).
		WithString("publication", form.PublicationSlug).
		WithString("release", form.Slug).
		Build()

	rv, err := h.releaseVersionSrv.Create(r.Context(), mappers.ReleaseVersionFormToModel(form))
	if err != nil {
		tracer.Error(err).Log()
		writeError(w, r, err)
		return
	}

	tracer.Success().WithUUID("release_version_id", rv.ID).Log()
	respond(w, r, http.StatusCreated, mappers.ReleaseVersionToApi(rv))
}

// (GET /api/v1/releases/{id})
func (h *ServiceHandler) GetReleaseVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.releaseVersionSrv.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReleaseVersionToApi(rv))
}

// (PUT /api/v1/releases/{id}/approval)
func (h *ServiceHandler) ApproveReleaseVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var form api.ReleaseVersionApproval
	if err := decodeBody(r, &form, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.releaseValidator.Struct(form); err != nil {
		writeError(w, r, err)
		return
	}

	var publishScheduled *time.Time
	if form.PublishScheduled != nil {
		t := form.PublishScheduled.UTC()
		publishScheduled = &t
	}

	rv, err := h.releaseVersionSrv.Approve(r.Context(), id, model.ApprovalStatus(form.ApprovalStatus), publishScheduled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReleaseVersionToApi(rv))
}
