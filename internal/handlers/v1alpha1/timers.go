package v1alpha1

import (
	"net/http"

	"github.com/riverqueue/river"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/jobs"
)

// (POST /api/v1/publisher/stage-scheduled-releases)
func (h *ServiceHandler) StageScheduledReleases(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "stage_scheduled_releases", func(form api.TimerTriggerRequest) river.JobArgs {
		return jobs.StageScheduledReleasesArgs{ReleaseVersionIDs: form.ReleaseVersionIds}
	})
}

// (POST /api/v1/publisher/publish-scheduled-releases)
func (h *ServiceHandler) PublishScheduledReleases(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "publish_scheduled_releases", func(form api.TimerTriggerRequest) river.JobArgs {
		return jobs.PublishScheduledReleasesArgs{ReleaseVersionIDs: form.ReleaseVersionIds}
	})
}

func (h *ServiceHandler) trigger(w http.ResponseWriter, r *http.Request, op string, args func(api.TimerTriggerRequest) river.JobArgs) {
	var form api.TimerTriggerRequest
	if err := decodeBody(r, &form, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.publishValidator.Struct(form); err != nil {
		writeError(w, r, err)
		return
	}

	tracer := h.logger.WithContext(r.Context()).
		Operation(op).
		WithInt("release_versions", len(form.ReleaseVersionIds)).
		Build()

	if err := h.queue.Enqueue(r.Context(), args(form)); err != nil {
		tracer.Error(err).Log()
		writeError(w, r, err)
		return
	}

	tracer.Success().Log()
	w.WriteHeader(http.StatusAccepted)
}
