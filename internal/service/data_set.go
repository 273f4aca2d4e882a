package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/cache"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/dataset"
	"github.com/statspub/publisher/pkg/log"
	"github.com/statspub/publisher/pkg/metrics"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	queryOutcomeOK      = "ok"
	queryOutcomeInvalid = "invalid"
	queryOutcomeError   = "error"
)

type DataSetQuerier interface {
	Query(ctx context.Context, parquetPath string, meta *dataset.Meta, q dataset.Query) (*dataset.Result, error)
}

// DataSetMeta is the public description of a published data set.
type DataSetMeta struct {
	ID        uuid.UUID    `json:"id"`
	Title     string       `json:"title"`
	Published *time.Time   `json:"published,omitempty"`
	Meta      dataset.Meta `json:"meta"`
}

type queryCacheArgs struct {
	id    uuid.UUID
	query dataset.Query
}

var (
	metaCacheKey = cache.KeyBuilder[uuid.UUID](func(id uuid.UUID) string {
		return cache.Key("data-set", id.String(), "meta")
	})
	queryCacheKey = cache.KeyBuilder[queryCacheArgs](func(a queryCacheArgs) string {
		data, _ := json.Marshal(a.query)
		sum := sha256.Sum256(data)
		return cache.Key("data-set", a.id.String(), "query", hex.EncodeToString(sum[:]))
	})
)

// DataSetService answers the public data API. Published data sets never
// change, so both metadata and query results are cached.
type DataSetService struct {
	store     store.Store
	querier   DataSetQuerier
	cache     cache.Backend
	ttl       time.Duration
	validator *validator.Validate
	logger    *log.StructuredLogger
}

func NewDataSetService(s store.Store, querier DataSetQuerier, backend cache.Backend, ttl time.Duration) *DataSetService {
	return &DataSetService{
		store:     s,
		querier:   querier,
		cache:     backend,
		ttl:       ttl,
		validator: validator.New(),
		logger:    log.NewDebugLogger("data_set_service"),
	}
}

// NewDataSetServiceFromRegistry looks the cache backend up by name.
func NewDataSetServiceFromRegistry(s store.Store, querier DataSetQuerier, registry *cache.Registry, backend string, ttl time.Duration) (*DataSetService, error) {
	b, err := registry.Get(backend)
	if err != nil {
		return nil, err
	}
	return NewDataSetService(s, querier, b, ttl), nil
}

func (s *DataSetService) GetMeta(ctx context.Context, id uuid.UUID) (*DataSetMeta, error) {
	return cache.GetOrLoad(ctx, s.cache, metaCacheKey(id), s.ttl, func(ctx context.Context) (*DataSetMeta, error) {
		ds, err := s.queryable(ctx, id)
		if err != nil {
			return nil, err
		}
		return &DataSetMeta{
			ID:        ds.ID,
			Title:     ds.Title,
			Published: ds.Published,
			Meta:      ds.Meta.Data,
		}, nil
	})
}

func (s *DataSetService) Query(ctx context.Context, id uuid.UUID, q dataset.Query) (*dataset.Result, error) {
	result, err := s.query(ctx, id, q)
	metrics.IncreaseDataSetQueriesMetric(FormatJSON, outcome(err))
	return result, err
}

// Export runs q and writes the results in format to w.
func (s *DataSetService) Export(ctx context.Context, id uuid.UUID, q dataset.Query, format string, w io.Writer) error {
	if format != FormatCSV && format != FormatXLSX {
		return NewErrInvalidRequest(fmt.Sprintf("unsupported format %q", format))
	}

	result, err := s.query(ctx, id, q)
	if err == nil {
		var meta *DataSetMeta
		if meta, err = s.GetMeta(ctx, id); err == nil {
			if format == FormatCSV {
				err = dataset.WriteCSV(w, &meta.Meta, result)
			} else {
				err = dataset.WriteXLSX(w, &meta.Meta, result)
			}
		}
	}
	metrics.IncreaseDataSetQueriesMetric(format, outcome(err))
	return err
}

func (s *DataSetService) query(ctx context.Context, id uuid.UUID, q dataset.Query) (*dataset.Result, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("query_data_set").
		WithUUID("data_set_id", id).
		Build()

	if err := s.validator.Struct(q); err != nil {
		tracer.Error(err).Log()
		return nil, NewErrInvalidRequest(err.Error())
	}

	result, err := cache.GetOrLoad(ctx, s.cache, queryCacheKey(queryCacheArgs{id: id, query: q}), s.ttl, func(ctx context.Context) (*dataset.Result, error) {
		ds, err := s.queryable(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.querier.Query(ctx, *ds.ParquetPath, &ds.Meta.Data, q)
	})
	if err != nil {
		var qerr *dataset.QueryError
		if errors.As(err, &qerr) {
			err = NewErrInvalidQuery(qerr)
		}
		tracer.Error(err).Log()
		return nil, err
	}

	metrics.UniqueDataSetsPerWeek.Add(id.String())
	tracer.Success().WithParam("total_results", result.Paging.TotalResults).Log()
	return result, nil
}

func (s *DataSetService) queryable(ctx context.Context, id uuid.UUID) (*model.DataSet, error) {
	ds, err := s.store.DataSet().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrDataSetNotFound(id)
		}
		return nil, err
	}
	if !ds.Queryable() {
		return nil, NewErrDataSetNotQueryable(id)
	}
	return ds, nil
}

func outcome(err error) string {
	switch err.(type) {
	case nil:
		return queryOutcomeOK
	case *ErrInvalidQuery, *ErrInvalidRequest:
		return queryOutcomeInvalid
	default:
		return queryOutcomeError
	}
}
