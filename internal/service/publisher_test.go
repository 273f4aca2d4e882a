package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/opa"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/storage"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/dataset"
)

const (
	privateBucket = "private"
	publicBucket  = "public"

	sourceCSV = `time_period,time_identifier,geographic_level,location_code,location_name,school_type,enrolments
2023,Calendar year,National,E92000001,England,Primary,100
2023,Calendar year,National,E92000001,England,Secondary,200
2024,Calendar year,National,E92000001,England,Primary,110
`
	brokenCSV = "time_period,enrolments\n2023,100\n"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func putObject(blobs storage.Storage, bucket, key, body string) {
	Expect(blobs.Put(context.TODO(), bucket, key, strings.NewReader(body), int64(len(body)), "text/plain")).To(Succeed())
}

func seedRelease(ctx context.Context, s store.Store, blobs storage.Storage, approval model.ApprovalStatus, publishAt *time.Time, source string) *model.ReleaseVersion {
	id := uuid.New()
	filePath := "releases/" + id.String() + "/absence.pdf"
	sourcePath := "releases/" + id.String() + "/absence.csv"
	putObject(blobs, privateBucket, filePath, "%PDF")
	putObject(blobs, privateBucket, sourcePath, source)

	rv, err := s.ReleaseVersion().Create(ctx, model.ReleaseVersion{
		ID:               id,
		ReleaseID:        uuid.New(),
		PublicationSlug:  "pupil-absence",
		Slug:             "2024-25",
		Title:            "Pupil absence 2024/25",
		ApprovalStatus:   approval,
		PublishScheduled: publishAt,
		Files: []model.ReleaseFile{
			{Name: "absence.pdf", Path: filePath, Type: model.FileTypeAncillary, ContentType: "application/pdf", Size: 4},
		},
		DataSets: []model.DataSet{
			{Title: "Absence by school type", SourcePath: sourcePath, Status: model.DataSetStatusDraft, Indicators: model.MakeJSONField([]string{"enrolments"})},
		},
	})
	Expect(err).To(BeNil())
	return rv
}

func logMessages(status *model.ReleasePublishingStatus) []string {
	var msgs []string
	for _, l := range status.Messages() {
		msgs = append(msgs, l.Message)
	}
	return msgs
}

func at(t time.Time) *time.Time { return &t }

var _ = Describe("publisher", Ordered, func() {
	var (
		ctx       context.Context
		gormDB    *gorm.DB
		s         store.Store
		parser    *dataset.Parser
		validator *opa.Validator
		blobs     *storage.MemoryStorage
		queue     *fakeQueue
		recorded  *recordedEvents
		clock     *testClock
		publisher *service.Publisher
	)

	BeforeAll(func() {
		ctx = context.TODO()
		gormDB = newTestDB()
		s = store.NewStore(gormDB)

		duck, err := dataset.Open("")
		Expect(err).To(BeNil())
		DeferCleanup(duck.Close)
		parser = dataset.New(duck, dataset.Options{})

		validator, err = opa.NewDefaultValidator()
		Expect(err).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		blobs = storage.NewMemoryStorage()
		queue = &fakeQueue{}
		recorded = &recordedEvents{}
		clock = newTestClock(base)
		publisher = service.NewPublisher(s, queue, blobs, validator, parser, recorded, service.PublisherConfig{
			PrivateBucket:   privateBucket,
			PublicBucket:    publicBucket,
			DataSetsFolder:  GinkgoT().TempDir(),
			StagingLeadTime: 24 * time.Hour,
		}).WithClock(clock.Now)
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM release_publishing_statuses;")
		gormDB.Exec("DELETE FROM data_sets;")
		gormDB.Exec("DELETE FROM release_files;")
		gormDB.Exec("DELETE FROM release_versions;")
	})

	Context("immediate publishing", func() {
		It("runs every stage and publishes the release", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, nil, sourceCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallStarted))
			Expect(status.DataStage).To(Equal(publishing.DataQueued))
			Expect(queue.kinds()).To(ConsistOf(jobs.PublishReleaseFilesKind, jobs.PublishReleaseDataKind, jobs.GenerateReleaseContentKind))

			drain(ctx, publisher, queue)

			status, err = s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallComplete))
			Expect(status.FilesStage).To(Equal(publishing.FilesComplete))
			Expect(status.DataStage).To(Equal(publishing.DataComplete))
			Expect(status.ContentStage).To(Equal(publishing.ContentComplete))
			Expect(status.PublishingStage).To(Equal(publishing.PublishingComplete))
			Expect(logMessages(status)).To(ContainElements("Publishing started", "Content staged", "Release published"))

			_, err = blobs.Stat(ctx, publicBucket, service.PublicFilePath("pupil-absence", "2024-25", "absence.pdf"))
			Expect(err).To(BeNil())

			var buf bytes.Buffer
			Expect(blobs.Get(ctx, publicBucket, service.LiveContentPrefix("pupil-absence", "2024-25")+"release.json", &buf)).To(Succeed())
			var content service.ReleaseContent
			Expect(json.Unmarshal(buf.Bytes(), &content)).To(Succeed())
			Expect(content.ReleaseVersionID).To(Equal(rv.ID))
			Expect(content.Files).To(HaveLen(1))
			Expect(content.DataSets).To(HaveLen(1))

			staged, err := blobs.List(ctx, publicBucket, service.StagingContentPrefix("pupil-absence", "2024-25"))
			Expect(err).To(BeNil())
			Expect(staged).To(BeEmpty())

			published, err := s.ReleaseVersion().Get(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(published.Published).NotTo(BeNil())
			Expect(published.Files[0].PublicPath).NotTo(BeNil())
			Expect(published.DataSets[0].Status).To(Equal(model.DataSetStatusPublished))
			Expect(published.DataSets[0].Queryable()).To(BeTrue())

			Expect(recorded.Publications()).To(HaveLen(1))
			Expect(recorded.Publications()[0].ReleaseVersionID).To(Equal(rv.ID))
		})

		It("keeps every stage write when stages run concurrently", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, nil, sourceCSV)
			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())

			var wg sync.WaitGroup
			for _, msg := range queue.take() {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(dispatch(ctx, publisher, msg)).To(Succeed())
				}()
			}
			wg.Wait()

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.FilesStage).To(Equal(publishing.FilesComplete))
			Expect(status.DataStage).To(Equal(publishing.DataComplete))
			Expect(status.ContentStage).To(Equal(publishing.ContentComplete))
			Expect(logMessages(status)).To(ContainElements("Published 1 files", "Processed 1 data sets", "Content staged"))
			Expect(queue.kinds()).To(Equal([]string{jobs.PublishReleaseContentKind}))
		})
	})

	Context("validation", func() {
		It("records an invalid attempt and queues nothing", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalDraft, nil, sourceCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallInvalid))
			Expect(logMessages(status)).To(ContainElement(ContainSubstring("must be approved")))
			Expect(queue.kinds()).To(BeEmpty())
		})

		It("rejects a scheduled release without a publish date", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, nil, sourceCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallInvalid))
			Expect(logMessages(status)).To(ContainElement("scheduled publishing requires a publish date"))
		})

		It("fails for an unknown release version", func() {
			err := publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: uuid.New()})
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("scheduled publishing", func() {
		It("stages within the lead time and publishes at the publish time", func() {
			publishAt := base.Add(48 * time.Hour)
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, at(publishAt), sourceCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())
			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallScheduled))
			Expect(status.ContentStage).To(Equal(publishing.ContentScheduled))
			Expect(status.PublishingStage).To(Equal(publishing.PublishingScheduled))
			Expect(queue.kinds()).To(BeEmpty())

			Expect(publisher.StageScheduledReleases(ctx, nil)).To(Succeed())
			Expect(queue.kinds()).To(BeEmpty())

			clock.Set(base.Add(30 * time.Hour))
			Expect(publisher.StageScheduledReleases(ctx, nil)).To(Succeed())
			Expect(queue.kinds()).To(ConsistOf(jobs.PublishReleaseFilesKind, jobs.PublishReleaseDataKind, jobs.StageReleaseContentKind))

			drain(ctx, publisher, queue)
			status, err = s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallStarted))
			Expect(status.PublishingStage).To(Equal(publishing.PublishingScheduled))
			Expect(status.State().ReadyToPublish()).To(BeTrue())

			Expect(publisher.PublishScheduledReleases(ctx, nil)).To(Succeed())
			Expect(queue.kinds()).To(BeEmpty())

			clock.Set(publishAt.Add(time.Minute))
			Expect(publisher.PublishScheduledReleases(ctx, nil)).To(Succeed())
			Expect(queue.kinds()).To(Equal([]string{jobs.PublishReleaseContentKind}))

			drain(ctx, publisher, queue)
			status, err = s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.OverallStage).To(Equal(publishing.OverallComplete))

			published, err := s.ReleaseVersion().Get(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(published.Published.Equal(publishAt)).To(BeTrue())
		})

		It("stages the given release versions regardless of the lead time", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, at(base.Add(72*time.Hour)), sourceCSV)
			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())

			Expect(publisher.StageScheduledReleases(ctx, []uuid.UUID{uuid.New()})).To(Succeed())
			Expect(queue.kinds()).To(BeEmpty())

			Expect(publisher.StageScheduledReleases(ctx, []uuid.UUID{rv.ID})).To(Succeed())
			Expect(queue.kinds()).To(HaveLen(3))
		})

		It("supersedes a scheduled attempt exactly once", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, at(base.Add(10*time.Hour)), sourceCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())
			first, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())
			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())

			old, err := s.ReleaseStatus().Get(ctx, first.Key())
			Expect(err).To(BeNil())
			Expect(old.OverallStage).To(Equal(publishing.OverallSuperseded))
			Expect(logMessages(old)).To(HaveLen(2))

			scheduled, err := s.ReleaseStatus().ListByOverall(ctx, publishing.OverallScheduled)
			Expect(err).To(BeNil())
			Expect(scheduled).To(HaveLen(1))

			latest, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())

			Expect(publisher.StageScheduledReleases(ctx, nil)).To(Succeed())
			msgs := queue.take()
			Expect(msgs).To(HaveLen(3))
			for _, msg := range msgs {
				keyed, ok := msg.(interface{ Key() model.ReleasePublishingKey })
				Expect(ok).To(BeTrue())
				Expect(keyed.Key()).To(Equal(latest.Key()))
			}
		})

		It("leaves a superseded attempt alone when its messages arrive", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, at(base.Add(10*time.Hour)), sourceCSV)
			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID})).To(Succeed())
			first, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())
			queue.take()

			Expect(publisher.PublishReleaseFiles(ctx, jobs.PublishReleaseFilesArgs{StatusKey: jobs.NewStatusKey(first.Key())})).To(Succeed())

			old, err := s.ReleaseStatus().Get(ctx, first.Key())
			Expect(err).To(BeNil())
			Expect(old.OverallStage).To(Equal(publishing.OverallSuperseded))
			Expect(old.FilesStage).To(Equal(publishing.FilesNotStarted))
		})
	})

	Context("stage failures", func() {
		It("fails the stage and the attempt without publishing", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, nil, brokenCSV)

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())
			drain(ctx, publisher, queue)

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.DataStage).To(Equal(publishing.DataFailed))
			Expect(status.OverallStage).To(Equal(publishing.OverallFailed))
			Expect(status.FilesStage).To(Equal(publishing.FilesComplete))
			Expect(status.PublishingStage).To(Equal(publishing.PublishingNotStarted))
			Expect(logMessages(status)).To(ContainElement(HavePrefix("Data stage failed:")))

			failures := recorded.Failures()
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Stage).To(Equal(string(publishing.StageData)))
			Expect(recorded.Publications()).To(BeEmpty())

			ds, err := s.DataSet().ListByReleaseVersion(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(ds[0].Status).To(Equal(model.DataSetStatusFailed))
			Expect(ds[0].Error).NotTo(BeNil())
		})

		It("fails the files stage when a file is missing", func() {
			rv := seedRelease(ctx, s, blobs, model.ApprovalApproved, nil, sourceCSV)
			Expect(blobs.Delete(ctx, privateBucket, rv.Files[0].Path)).To(Succeed())

			Expect(publisher.NotifyChange(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: rv.ID, Immediate: true})).To(Succeed())
			drain(ctx, publisher, queue)

			status, err := s.ReleaseStatus().GetLatest(ctx, rv.ID)
			Expect(err).To(BeNil())
			Expect(status.FilesStage).To(Equal(publishing.FilesFailed))
			Expect(status.OverallStage).To(Equal(publishing.OverallFailed))
			Expect(logMessages(status)).To(ContainElement(ContainSubstring(storage.ErrObjectNotFound.Error())))
		})
	})
})
