package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/publishing"
	st "github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
)

func newStatus(releaseVersionID uuid.UUID, state publishing.State) model.ReleasePublishingStatus {
	s := model.ReleasePublishingStatus{
		ReleaseVersionID: releaseVersionID,
		ReleaseID:        uuid.New(),
		PublicationSlug:  "pupil-absence",
		ReleaseSlug:      "2023-24",
	}
	s.SetState(state)
	return s
}

var _ = Describe("release status store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
		ctx    context.Context
	)

	BeforeAll(func() {
		gormDB = newTestDB()
		store = st.NewStore(gormDB)
		ctx = context.TODO()
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM release_publishing_statuses;")
	})

	Context("create and get", func() {
		It("returns the latest attempt of a release version", func() {
			rvID := uuid.New()
			first, err := store.ReleaseStatus().Create(ctx, newStatus(rvID, publishing.NewScheduledState()))
			Expect(err).To(BeNil())
			Expect(first.Version).To(Equal(1))

			second := newStatus(rvID, publishing.NewImmediateState())
			second.Created = first.Created.Add(time.Second)
			_, err = store.ReleaseStatus().Create(ctx, second)
			Expect(err).To(BeNil())

			latest, err := store.ReleaseStatus().GetLatest(ctx, rvID)
			Expect(err).To(BeNil())
			Expect(latest.OverallStage).To(Equal(publishing.OverallStarted))
			Expect(latest.DataStage).To(Equal(publishing.DataQueued))
		})

		It("reports a missing release version", func() {
			_, err := store.ReleaseStatus().GetLatest(ctx, uuid.New())
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("stage updates", func() {
		It("derives the overall stage on every write", func() {
			created, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			for _, u := range []struct {
				stage publishing.StageName
				value string
			}{
				{publishing.StageFiles, string(publishing.FilesComplete)},
				{publishing.StageData, string(publishing.DataComplete)},
				{publishing.StageContent, string(publishing.ContentComplete)},
				{publishing.StagePublishing, string(publishing.PublishingComplete)},
			} {
				_, err := store.ReleaseStatus().UpdateStage(ctx, created.Key(), u.stage, u.value, nil)
				Expect(err).To(BeNil())
			}

			status, err := store.ReleaseStatus().Get(ctx, created.Key())
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallComplete))
			Expect(status.Version).To(Equal(5))
		})

		It("keeps the other stages when one fails", func() {
			created, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			msg := "copy failed: bucket not found"
			status, err := store.ReleaseStatus().UpdateStage(ctx, created.Key(), publishing.StageFiles, string(publishing.FilesFailed), &msg)
			Expect(err).To(BeNil())
			Expect(status.FilesStage).To(Equal(publishing.FilesFailed))
			Expect(status.OverallStage).To(Equal(publishing.OverallFailed))
			Expect(status.DataStage).To(Equal(publishing.DataQueued))
			Expect(status.ContentStage).To(Equal(publishing.ContentNotStarted))
			Expect(status.Messages()).To(HaveLen(1))
			Expect(status.Messages()[0].Message).To(ContainSubstring("bucket not found"))

			again, err := store.ReleaseStatus().Get(ctx, created.Key())
			Expect(err).To(BeNil())
			Expect(again.State()).To(Equal(status.State()))
		})

		It("rejects values outside the stage enumeration", func() {
			created, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			_, err = store.ReleaseStatus().UpdateStage(ctx, created.Key(), publishing.StageFiles, "Queued", nil)
			Expect(err).ToNot(BeNil())
		})

		It("does not lose concurrent writes to different stages", func() {
			created, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			var wg sync.WaitGroup
			updates := map[publishing.StageName]string{
				publishing.StageFiles:   string(publishing.FilesComplete),
				publishing.StageData:    string(publishing.DataComplete),
				publishing.StageContent: string(publishing.ContentComplete),
			}
			for stage, value := range updates {
				wg.Add(1)
				go func(stage publishing.StageName, value string) {
					defer GinkgoRecover()
					defer wg.Done()
					msg := string(stage) + " done"
					_, err := store.ReleaseStatus().UpdateStage(ctx, created.Key(), stage, value, &msg)
					Expect(err).To(BeNil())
				}(stage, value)
			}
			wg.Wait()

			status, err := store.ReleaseStatus().Get(ctx, created.Key())
			Expect(err).To(BeNil())
			Expect(status.FilesStage).To(Equal(publishing.FilesComplete))
			Expect(status.DataStage).To(Equal(publishing.DataComplete))
			Expect(status.ContentStage).To(Equal(publishing.ContentComplete))
			Expect(status.Messages()).To(HaveLen(3))
			Expect(status.State().ReadyToPublish()).To(BeTrue())
		})

		It("leaves the row alone when the update is skipped", func() {
			created, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			status, err := store.ReleaseStatus().Update(ctx, created.Key(), func(*model.ReleasePublishingStatus) error {
				return st.ErrSkipUpdate
			})
			Expect(err).To(BeNil())
			Expect(status.Version).To(Equal(1))
		})
	})

	Context("supersede", func() {
		It("marks a scheduled attempt superseded exactly once", func() {
			rvID := uuid.New()
			prior, err := store.ReleaseStatus().Create(ctx, newStatus(rvID, publishing.NewScheduledState()))
			Expect(err).To(BeNil())

			superseded, err := store.ReleaseStatus().Supersede(ctx, rvID, "superseded by a newer attempt")
			Expect(err).To(BeNil())
			Expect(superseded).To(HaveLen(1))
			Expect(superseded[0].ID).To(Equal(prior.ID))

			superseded, err = store.ReleaseStatus().Supersede(ctx, rvID, "superseded by a newer attempt")
			Expect(err).To(BeNil())
			Expect(superseded).To(BeEmpty())

			status, err := store.ReleaseStatus().Get(ctx, prior.Key())
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallSuperseded))
			Expect(status.Messages()).To(HaveLen(1))

			// absorbing: later stage writes keep it superseded
			status, err = store.ReleaseStatus().UpdateStage(ctx, prior.Key(), publishing.StageFiles, string(publishing.FilesComplete), nil)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallSuperseded))
		})

		It("ignores attempts that already started", func() {
			rvID := uuid.New()
			_, err := store.ReleaseStatus().Create(ctx, newStatus(rvID, publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			superseded, err := store.ReleaseStatus().Supersede(ctx, rvID, "superseded")
			Expect(err).To(BeNil())
			Expect(superseded).To(BeEmpty())
		})
	})

	Context("listing", func() {
		It("finds scheduled attempts due before a time", func() {
			now := time.Now().UTC()
			soon := now.Add(time.Hour)
			later := now.Add(72 * time.Hour)

			due := newStatus(uuid.New(), publishing.NewScheduledState())
			due.Publish = &soon
			_, err := store.ReleaseStatus().Create(ctx, due)
			Expect(err).To(BeNil())

			notDue := newStatus(uuid.New(), publishing.NewScheduledState())
			notDue.Publish = &later
			_, err = store.ReleaseStatus().Create(ctx, notDue)
			Expect(err).To(BeNil())

			statuses, err := store.ReleaseStatus().List(ctx,
				st.NewReleaseStatusQueryFilter().
					ByOverallStage(publishing.OverallScheduled).
					ByScheduled().
					ByPublishBefore(now.Add(24*time.Hour)),
				st.NewReleaseStatusQueryOptions().WithSortOrder(st.SortByPublishTime),
			)
			Expect(err).To(BeNil())
			Expect(statuses).To(HaveLen(1))
			Expect(statuses[0].ReleaseVersionID).To(Equal(due.ReleaseVersionID))

			all, err := store.ReleaseStatus().ListByOverall(ctx, publishing.OverallScheduled)
			Expect(err).To(BeNil())
			Expect(all).To(HaveLen(2))
		})

		It("counts attempts by overall stage", func() {
			_, err := store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewScheduledState()))
			Expect(err).To(BeNil())
			_, err = store.ReleaseStatus().Create(ctx, newStatus(uuid.New(), publishing.NewImmediateState()))
			Expect(err).To(BeNil())

			stats, err := store.Statistics(ctx)
			Expect(err).To(BeNil())
			Expect(stats.Total).To(BeEquivalentTo(2))
			Expect(stats.ByOverallStage[publishing.OverallScheduled]).To(BeEquivalentTo(1))
			Expect(stats.ByOverallStage[publishing.OverallStarted]).To(BeEquivalentTo(1))
			Expect(stats.ByOverallStage[publishing.OverallComplete]).To(BeEquivalentTo(0))
		})
	})

	Context("transaction", func() {
		It("rolls back a created attempt", func() {
			rvID := uuid.New()
			err := st.WithinTransaction(ctx, store, func(txCtx context.Context) error {
				_, err := store.ReleaseStatus().Create(txCtx, newStatus(rvID, publishing.NewScheduledState()))
				Expect(err).To(BeNil())
				return st.ErrDuplicateKey
			})
			Expect(err).To(MatchError(st.ErrDuplicateKey))

			_, err = store.ReleaseStatus().GetLatest(ctx, rvID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})
})
