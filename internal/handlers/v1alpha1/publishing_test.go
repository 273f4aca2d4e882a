package v1alpha1_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/riverqueue/river"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/cache"
	"github.com/statspub/publisher/internal/events"
	handlers "github.com/statspub/publisher/internal/handlers/v1alpha1"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/dataset"
)

func releaseForm() api.ReleaseVersionCreate {
	return api.ReleaseVersionCreate{
		ReleaseId:       uuid.New(),
		PublicationSlug: "pupil-absence",
		Slug:            "2024-25",
		Title:           "Pupil absence 2024/25",
		Files: []api.ReleaseFile{
			{Name: "methodology.pdf", Path: "releases/abc/methodology.pdf", Type: "Ancillary", Size: 10},
		},
		DataSets: []api.DataSet{
			{Title: "Absence by school type", SourcePath: "releases/abc/absence.csv", Indicators: []string{"enrolments"}},
		},
	}
}

var _ = Describe("release and publishing handlers", Ordered, func() {
	var (
		ctx    context.Context
		s      store.Store
		queue  *fakeQueue
		health *service.HealthService
		router http.Handler
		seq    int
	)

	BeforeAll(func() {
		ctx = context.TODO()
		s = store.NewStore(newTestDB())

		duck, err := dataset.Open("")
		Expect(err).To(BeNil())
		DeferCleanup(duck.Close)

		queue = &fakeQueue{}
		health = service.NewHealthService()
		h := handlers.NewServiceHandler(
			service.NewReleaseVersionService(s),
			service.NewReleaseStatusService(s, queue, events.Discard{}),
			service.NewDataSetService(s, dataset.New(duck, dataset.Options{}), cache.NewMemoryBackend(), time.Minute),
			health,
			queue,
		)
		router = newRouter(h)
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		queue.take()
	})

	createRelease := func() api.ReleaseVersion {
		rec := do(router, http.MethodPost, "/api/v1/releases", releaseForm())
		Expect(rec.Code).To(Equal(http.StatusCreated))
		return decode[api.ReleaseVersion](rec)
	}

	createAttempt := func(releaseVersionID uuid.UUID, state publishing.State) *model.ReleasePublishingStatus {
		seq++
		status := model.ReleasePublishingStatus{
			Created:          time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
			ReleaseVersionID: releaseVersionID,
			ReleaseID:        uuid.New(),
			PublicationSlug:  "pupil-absence",
			ReleaseSlug:      "2024-25",
			Publish:          at(time.Now().Add(48 * time.Hour).UTC()),
		}
		status.SetState(state)
		status.AppendLog(time.Now().UTC(), "Publishing scheduled")
		created, err := s.ReleaseStatus().Create(ctx, status)
		Expect(err).To(BeNil())
		return created
	}

	Context("releases", func() {
		It("creates a draft release version", func() {
			rv := createRelease()
			Expect(rv.ApprovalStatus).To(Equal("Draft"))
			Expect(rv.Files).To(HaveLen(1))
			Expect(rv.DataSets).To(HaveLen(1))
			Expect(rv.DataSets[0].Status).To(Equal("Draft"))
			Expect(rv.DataSets[0].Indicators).To(ConsistOf("enrolments"))

			rec := do(router, http.MethodGet, "/api/v1/releases/"+rv.Id.String(), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode[api.ReleaseVersion](rec).Title).To(Equal("Pupil absence 2024/25"))
		})

		It("rejects an invalid form", func() {
			form := releaseForm()
			form.Slug = "Not A Slug"
			rec := do(router, http.MethodPost, "/api/v1/releases", form)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode[api.Error](rec).Reasons).To(ContainElement("ReleaseVersionCreate.Slug: failed on slug"))
		})

		It("rejects a malformed body", func() {
			rec := do(router, http.MethodPost, "/api/v1/releases", "not an object")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown release version and 400 for a bad id", func() {
			Expect(do(router, http.MethodGet, "/api/v1/releases/"+uuid.NewString(), nil).Code).To(Equal(http.StatusNotFound))
			Expect(do(router, http.MethodGet, "/api/v1/releases/abc", nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("approves with a publish date", func() {
			rv := createRelease()
			publishAt := time.Date(2026, 11, 5, 9, 30, 0, 0, time.UTC)
			rec := do(router, http.MethodPut, fmt.Sprintf("/api/v1/releases/%s/approval", rv.Id), api.ReleaseVersionApproval{
				ApprovalStatus:   "Approved",
				PublishScheduled: &publishAt,
			})
			Expect(rec.Code).To(Equal(http.StatusOK))
			approved := decode[api.ReleaseVersion](rec)
			Expect(approved.ApprovalStatus).To(Equal("Approved"))
			Expect(approved.PublishScheduled.Equal(publishAt)).To(BeTrue())

			rec = do(router, http.MethodPut, fmt.Sprintf("/api/v1/releases/%s/approval", rv.Id), api.ReleaseVersionApproval{ApprovalStatus: "Published"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("publishing", func() {
		It("queues validation when publishing is requested", func() {
			rv := createRelease()
			rec := do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/publish", rv.Id), api.PublishRequest{Immediate: true})
			Expect(rec.Code).To(Equal(http.StatusAccepted))

			msgs := queue.take()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0]).To(Equal(jobs.NotifyChangeArgs{ReleaseVersionID: rv.Id, Immediate: true}))
		})

		It("accepts a publish request without a body", func() {
			rv := createRelease()
			Expect(do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/publish", rv.Id), nil).Code).To(Equal(http.StatusAccepted))
			Expect(queue.take()).To(Equal([]river.JobArgs{jobs.NotifyChangeArgs{ReleaseVersionID: rv.Id}}))
		})

		It("returns the stage status of the latest attempt", func() {
			rv := createRelease()
			Expect(do(router, http.MethodGet, fmt.Sprintf("/api/v1/releases/%s/stage-status", rv.Id), nil).Code).To(Equal(http.StatusNotFound))

			attempt := createAttempt(rv.Id, publishing.NewScheduledState())
			rec := do(router, http.MethodGet, fmt.Sprintf("/api/v1/releases/%s/stage-status", rv.Id), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			status := decode[api.StageStatus](rec)
			Expect(status.Status.ReleaseStatusId).To(Equal(attempt.ID))
			Expect(status.Status.OverallStage).To(Equal("Scheduled"))
			Expect(status.Status.ContentStage).To(Equal("Scheduled"))
			Expect(status.Status.Log).To(HaveLen(1))
			Expect(status.ActiveJobs).To(BeEmpty())
		})

		It("lists the history newest first", func() {
			rv := createRelease()
			first := createAttempt(rv.Id, publishing.NewInvalidState())
			second := createAttempt(rv.Id, publishing.NewScheduledState())

			rec := do(router, http.MethodGet, fmt.Sprintf("/api/v1/releases/%s/status-history", rv.Id), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			history := decode[[]api.ReleasePublishingStatus](rec)
			Expect(history).To(HaveLen(2))
			Expect(history[0].ReleaseStatusId).To(Equal(second.ID))
			Expect(history[1].ReleaseStatusId).To(Equal(first.ID))
		})

		It("cancels scheduled publishing once", func() {
			rv := createRelease()
			createAttempt(rv.Id, publishing.NewScheduledState())

			rec := do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/cancel", rv.Id), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			status := decode[api.ReleasePublishingStatus](rec)
			Expect(status.PublishingStage).To(Equal("Cancelled"))
			Expect(status.OverallStage).To(Equal("Invalid"))

			Expect(do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/cancel", rv.Id), nil).Code).To(Equal(http.StatusConflict))
		})

		It("validates the retried stage", func() {
			rv := createRelease()
			createAttempt(rv.Id, publishing.NewScheduledState())

			rec := do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/retry-stage", rv.Id), api.RetryStageRequest{Stage: "Overall"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))

			rec = do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/retry-stage", rv.Id), api.RetryStageRequest{Stage: "Files"})
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(queue.take()).To(BeEmpty())
		})

		It("retries a failed stage", func() {
			rv := createRelease()
			state := publishing.NewImmediateState()
			state, err := state.Set(publishing.StageFiles, string(publishing.FilesFailed))
			Expect(err).To(BeNil())
			attempt := createAttempt(rv.Id, state)

			rec := do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/retry-stage", rv.Id), api.RetryStageRequest{Stage: "Files"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			status := decode[api.ReleasePublishingStatus](rec)
			Expect(status.FilesStage).To(Equal("NotStarted"))

			msgs := queue.take()
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Kind()).To(Equal(jobs.PublishReleaseFilesKind))
			Expect(msgs[0].(jobs.PublishReleaseFilesArgs).Key()).To(Equal(attempt.Key()))
		})

		It("retries publishing only once an attempt has finished", func() {
			rv := createRelease()
			createAttempt(rv.Id, publishing.NewScheduledState())
			Expect(do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/retry-publishing", rv.Id), nil).Code).To(Equal(http.StatusConflict))

			state, err := publishing.NewImmediateState().Set(publishing.StageData, string(publishing.DataFailed))
			Expect(err).To(BeNil())
			createAttempt(rv.Id, state)
			Expect(do(router, http.MethodPost, fmt.Sprintf("/api/v1/releases/%s/retry-publishing", rv.Id), nil).Code).To(Equal(http.StatusAccepted))
			Expect(queue.take()).To(Equal([]river.JobArgs{jobs.NotifyChangeArgs{ReleaseVersionID: rv.Id, Immediate: true}}))
		})

		It("reports statistics", func() {
			rec := do(router, http.MethodGet, "/api/v1/publisher/statistics", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			stats := decode[api.PublishingStatistics](rec)
			Expect(stats.Total).To(BeNumerically(">", 0))
			Expect(stats.ByOverallStage).To(HaveKey("Superseded"))
		})
	})

	Context("timers", func() {
		It("queues the staging timer for the given release versions", func() {
			id := uuid.New()
			rec := do(router, http.MethodPost, "/api/v1/publisher/stage-scheduled-releases", api.TimerTriggerRequest{ReleaseVersionIds: []uuid.UUID{id}})
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(queue.take()).To(Equal([]river.JobArgs{jobs.StageScheduledReleasesArgs{ReleaseVersionIDs: []uuid.UUID{id}}}))
		})

		It("queues the publishing timer without a body", func() {
			rec := do(router, http.MethodPost, "/api/v1/publisher/publish-scheduled-releases", nil)
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(queue.take()).To(Equal([]river.JobArgs{jobs.PublishScheduledReleasesArgs{}}))
		})

		It("rejects a nil release version id", func() {
			rec := do(router, http.MethodPost, "/api/v1/publisher/publish-scheduled-releases", api.TimerTriggerRequest{ReleaseVersionIds: []uuid.UUID{uuid.Nil}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("health", func() {
		It("reports failing checks", func() {
			Expect(do(router, http.MethodGet, "/health", nil).Code).To(Equal(http.StatusOK))

			health.Register("queue", func(context.Context) error { return errors.New("down") })
			rec := do(router, http.MethodGet, "/health", nil)
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decode[api.Error](rec).Message).To(ContainSubstring("queue"))
		})
	})
})

func at(t time.Time) *time.Time { return &t }
