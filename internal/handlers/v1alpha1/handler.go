package v1alpha1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/handlers/validator"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/pkg/log"
)

type ServiceHandler struct {
	releaseVersionSrv *service.ReleaseVersionService
	releaseStatusSrv  *service.ReleaseStatusService
	dataSetSrv        *service.DataSetService
	healthSrv         *service.HealthService
	queue             jobs.Queue
	releaseValidator  *validator.Validator
	publishValidator  *validator.Validator
	logger            *log.StructuredLogger
}

func NewServiceHandler(
	releaseVersionService *service.ReleaseVersionService,
	releaseStatusService *service.ReleaseStatusService,
	dataSetService *service.DataSetService,
	healthService *service.HealthService,
	queue jobs.Queue,
) *ServiceHandler {
	return &ServiceHandler{
		releaseVersionSrv: releaseVersionService,
		releaseStatusSrv:  releaseStatusService,
		dataSetSrv:        dataSetService,
		healthSrv:         healthService,
		queue:             queue,
		releaseValidator:  validator.NewReleaseValidator(),
		publishValidator:  validator.NewPublishingValidator(),
		logger:            log.NewDebugLogger("handlers"),
	}
}

// RegisterAdminApi mounts the release and publishing routes. They expect an
// authenticated user in the request context.
func (h *ServiceHandler) RegisterAdminApi(r chi.Router) {
	r.Post("/api/v1/releases", h.CreateReleaseVersion)
	r.Get("/api/v1/releases/{id}", h.GetReleaseVersion)
	r.Put("/api/v1/releases/{id}/approval", h.ApproveReleaseVersion)
	r.Get("/api/v1/releases/{id}/stage-status", h.GetStageStatus)
	r.Get("/api/v1/releases/{id}/status-history", h.GetStatusHistory)
	r.Post("/api/v1/releases/{id}/publish", h.PublishRelease)
	r.Post("/api/v1/releases/{id}/retry-stage", h.RetryStage)
	r.Post("/api/v1/releases/{id}/retry-publishing", h.RetryPublishing)
	r.Post("/api/v1/releases/{id}/cancel", h.CancelScheduledPublishing)
	r.Get("/api/v1/publisher/statistics", h.GetStatistics)
}

// RegisterTimerApi mounts the manual timer triggers.
func (h *ServiceHandler) RegisterTimerApi(r chi.Router) {
	r.Post("/api/v1/publisher/stage-scheduled-releases", h.StageScheduledReleases)
	r.Post("/api/v1/publisher/publish-scheduled-releases", h.PublishScheduledReleases)
}

func (h *ServiceHandler) RegisterPublicApi(r chi.Router) {
	r.Get("/api/v1/public/data-sets/{id}/meta", h.GetDataSetMeta)
	r.Post("/api/v1/public/data-sets/{id}/query", h.QueryDataSet)
}

func (h *ServiceHandler) RegisterHealthApi(r chi.Router) {
	r.Get("/health", h.Health)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, service.NewErrInvalidRequest("id is not a valid uuid")
	}
	return id, nil
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return service.NewErrInvalidRequest(err.Error())
	}
	return nil
}

func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
