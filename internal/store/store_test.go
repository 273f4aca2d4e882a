package store_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/publishing"
	st "github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
)

var _ = Describe("Store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		gormDB = newTestDB()
		store = st.NewStore(gormDB)
		Expect(store).ToNot(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	newReleaseVersion := func() model.ReleaseVersion {
		return model.ReleaseVersion{
			ReleaseID:       uuid.New(),
			PublicationSlug: "school-workforce",
			Slug:            "2024",
			Title:           "School workforce 2024",
			ApprovalStatus:  model.ApprovalDraft,
		}
	}

	count := func(table string) int {
		n := 0
		err := gormDB.Raw("SELECT COUNT(*) FROM " + table).Scan(&n).Error
		Expect(err).To(BeNil())
		return n
	}

	Context("transaction", func() {
		It("commits a release version", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			rv, err := store.ReleaseVersion().Create(ctx, newReleaseVersion())
			Expect(rv).ToNot(BeNil())
			Expect(err).To(BeNil())

			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			Expect(count("release_versions")).To(Equal(1))
		})

		It("rolls back a release version", func() {
			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.ReleaseVersion().Create(ctx, newReleaseVersion())
			Expect(err).To(BeNil())

			// visible in the same transaction
			rvs, err := store.ReleaseVersion().List(ctx, st.NewReleaseVersionQueryFilter())
			Expect(err).To(BeNil())
			Expect(rvs).To(HaveLen(1))

			_, cerr := st.Rollback(ctx)
			Expect(cerr).To(BeNil())

			Expect(count("release_versions")).To(Equal(0))
		})

		It("rolls back everything when the function fails", func() {
			boom := errors.New("boom")
			err := st.WithinTransaction(context.TODO(), store, func(ctx context.Context) error {
				if _, err := store.ReleaseVersion().Create(ctx, newReleaseVersion()); err != nil {
					return err
				}
				// nested calls join the outer transaction
				return st.WithinTransaction(ctx, store, func(ctx context.Context) error {
					if _, err := store.ReleaseVersion().Create(ctx, newReleaseVersion()); err != nil {
						return err
					}
					return boom
				})
			})
			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(count("release_versions")).To(Equal(0))
		})

		AfterEach(func() {
			gormDB.Exec("DELETE FROM release_versions;")
		})
	})

	Context("statistics", func() {
		It("counts attempts by overall stage", func() {
			ctx := context.TODO()
			for _, overall := range []publishing.OverallStage{
				publishing.OverallScheduled,
				publishing.OverallScheduled,
				publishing.OverallComplete,
			} {
				_, err := store.ReleaseStatus().Create(ctx, model.ReleasePublishingStatus{
					ReleaseVersionID: uuid.New(),
					ReleaseID:        uuid.New(),
					PublicationSlug:  "school-workforce",
					ReleaseSlug:      "2024",
					OverallStage:     overall,
				})
				Expect(err).To(BeNil())
			}

			stats, err := store.Statistics(ctx)
			Expect(err).To(BeNil())
			Expect(stats.Total).To(BeEquivalentTo(3))
			Expect(stats.ByOverallStage[publishing.OverallScheduled]).To(BeEquivalentTo(2))
			Expect(stats.ByOverallStage[publishing.OverallComplete]).To(BeEquivalentTo(1))
		})

		It("answers the health check", func() {
			Expect(store.Ping(context.TODO())).To(Succeed())
		})

		AfterEach(func() {
			gormDB.Exec("DELETE FROM release_publishing_statuses;")
		})
	})
})
