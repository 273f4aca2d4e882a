package v1alpha1_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/cache"
	"github.com/statspub/publisher/internal/events"
	handlers "github.com/statspub/publisher/internal/handlers/v1alpha1"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/dataset"
)

const sourceCSV = `time_period,time_identifier,geographic_level,location_code,location_name,school_type,enrolments
2023,Calendar year,National,E92000001,England,Primary,100
2023,Calendar year,National,E92000001,England,Secondary,200
2024,Calendar year,National,E92000001,England,Primary,110
`

var _ = Describe("public data set handlers", Ordered, func() {
	var (
		ctx       context.Context
		s         store.Store
		router    http.Handler
		published *model.DataSet
		draft     *model.DataSet
	)

	BeforeAll(func() {
		ctx = context.TODO()
		s = store.NewStore(newTestDB())

		duck, err := dataset.Open("")
		Expect(err).To(BeNil())
		DeferCleanup(duck.Close)
		parser := dataset.New(duck, dataset.Options{DefaultPageSize: 2, MaxPageSize: 10})

		dir := GinkgoT().TempDir()
		sourcePath := filepath.Join(dir, "source.csv")
		Expect(os.WriteFile(sourcePath, []byte(sourceCSV), 0o600)).To(Succeed())
		parquetPath := filepath.Join(dir, "data.parquet")
		meta, err := parser.Ingest(ctx, sourcePath, parquetPath, dataset.IngestOptions{Indicators: []string{"enrolments"}})
		Expect(err).To(BeNil())

		rv, err := s.ReleaseVersion().Create(ctx, model.ReleaseVersion{
			ReleaseID:       uuid.New(),
			PublicationSlug: "pupil-absence",
			Slug:            "2024-25",
			Title:           "Pupil absence 2024/25",
			ApprovalStatus:  model.ApprovalApproved,
			DataSets: []model.DataSet{
				{Title: "Absence by school type", SourcePath: "absence.csv", Status: model.DataSetStatusDraft},
				{Title: "Draft data", SourcePath: "draft.csv", Status: model.DataSetStatusDraft},
			},
		})
		Expect(err).To(BeNil())

		now := time.Now().UTC()
		ds := rv.DataSets[0]
		ds.Status = model.DataSetStatusPublished
		ds.Meta = model.MakeJSONField(*meta)
		ds.ParquetPath = &parquetPath
		ds.Published = &now
		published, err = s.DataSet().Update(ctx, ds)
		Expect(err).To(BeNil())
		draft = &rv.DataSets[1]

		queue := &fakeQueue{}
		h := handlers.NewServiceHandler(
			service.NewReleaseVersionService(s),
			service.NewReleaseStatusService(s, queue, events.Discard{}),
			service.NewDataSetService(s, parser, cache.NewMemoryBackend(), time.Minute),
			service.NewHealthService(),
			queue,
		)
		router = newRouter(h)
	})

	AfterAll(func() {
		s.Close()
	})

	queryPath := func(id uuid.UUID, format string) string {
		path := fmt.Sprintf("/api/v1/public/data-sets/%s/query", id)
		if format != "" {
			path += "?format=" + format
		}
		return path
	}

	Context("meta", func() {
		It("describes a published data set", func() {
			rec := do(router, http.MethodGet, fmt.Sprintf("/api/v1/public/data-sets/%s/meta", published.ID), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			meta := decode[service.DataSetMeta](rec)
			Expect(meta.ID).To(Equal(published.ID))
			Expect(meta.Meta.Filters).To(HaveLen(1))
			Expect(meta.Meta.Indicators[0].ID).To(Equal("enrolments"))
		})

		It("hides unknown and unpublished data sets", func() {
			Expect(do(router, http.MethodGet, fmt.Sprintf("/api/v1/public/data-sets/%s/meta", uuid.New()), nil).Code).To(Equal(http.StatusNotFound))
			Expect(do(router, http.MethodGet, fmt.Sprintf("/api/v1/public/data-sets/%s/meta", draft.ID), nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("query", func() {
		It("returns a page of results", func() {
			rec := do(router, http.MethodPost, queryPath(published.ID, ""), dataset.Query{Indicators: []string{"enrolments"}})
			Expect(rec.Code).To(Equal(http.StatusOK))

			result := decode[dataset.Result](rec)
			Expect(result.Paging).To(Equal(dataset.Paging{Page: 1, PageSize: 2, TotalResults: 3, TotalPages: 2}))
			Expect(result.Results).To(HaveLen(2))
			Expect(result.Results[0].Values["enrolments"]).To(Equal("100"))
		})

		It("explains an invalid query", func() {
			rec := do(router, http.MethodPost, queryPath(published.ID, ""), dataset.Query{Indicators: []string{"absences"}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			body := decode[api.Error](rec)
			Expect(body.Message).To(ContainSubstring("indicators"))
			Expect(body.Reasons).To(ConsistOf("absences"))

			rec = do(router, http.MethodPost, queryPath(published.ID, ""), dataset.Query{})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("downloads csv", func() {
			rec := do(router, http.MethodPost, queryPath(published.ID, "csv"), dataset.Query{Indicators: []string{"enrolments"}, PageSize: 10})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(HavePrefix("text/csv"))
			Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring(published.ID.String() + ".csv"))

			rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(4))
			Expect(rows[0][len(rows[0])-1]).To(Equal("enrolments"))
		})

		It("downloads xlsx", func() {
			rec := do(router, http.MethodPost, queryPath(published.ID, "xlsx"), dataset.Query{Indicators: []string{"enrolments"}})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(rec.Body.Len()).To(BeNumerically(">", 0))
		})

		It("rejects an unknown format", func() {
			rec := do(router, http.MethodPost, queryPath(published.ID, "parquet"), dataset.Query{Indicators: []string{"enrolments"}})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
