package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/store/model"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByUpdatedTime
	SortByCreatedTime
	SortByPublishTime
)

const maxUpdateAttempts = 5

// UpdateFunc mutates a freshly read row. Returning ErrSkipUpdate leaves the
// row untouched; any other error aborts the update.
type UpdateFunc func(status *model.ReleasePublishingStatus) error

type ReleaseStatus interface {
	Create(ctx context.Context, status model.ReleasePublishingStatus) (*model.ReleasePublishingStatus, error)
	Get(ctx context.Context, key model.ReleasePublishingKey) (*model.ReleasePublishingStatus, error)
	GetLatest(ctx context.Context, releaseVersionID uuid.UUID) (*model.ReleasePublishingStatus, error)
	List(ctx context.Context, filter *ReleaseStatusQueryFilter, opts *ReleaseStatusQueryOptions) (model.ReleasePublishingStatusList, error)
	Update(ctx context.Context, key model.ReleasePublishingKey, fn UpdateFunc) (*model.ReleasePublishingStatus, error)
	UpdateStage(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, value string, logMessage *string) (*model.ReleasePublishingStatus, error)
	ListByOverall(ctx context.Context, stages ...publishing.OverallStage) (model.ReleasePublishingStatusList, error)
	Supersede(ctx context.Context, releaseVersionID uuid.UUID, reason string) (model.ReleasePublishingStatusList, error)
	CountByOverallStage(ctx context.Context) (map[string]int64, error)
}

type ReleaseStatusStore struct {
	db *gorm.DB
}

var _ ReleaseStatus = (*ReleaseStatusStore)(nil)

func NewReleaseStatusStore(db *gorm.DB) ReleaseStatus {
	return &ReleaseStatusStore{db: db}
}

func (r *ReleaseStatusStore) Create(ctx context.Context, status model.ReleasePublishingStatus) (*model.ReleasePublishingStatus, error) {
	if status.ID == uuid.Nil {
		status.ID = uuid.New()
	}
	now := time.Now().UTC()
	if status.Created.IsZero() {
		status.Created = now
	}
	status.LastUpdated = now
	status.Version = 1

	if err := r.getDB(ctx).Create(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return &status, nil
}

func (r *ReleaseStatusStore) Get(ctx context.Context, key model.ReleasePublishingKey) (*model.ReleasePublishingStatus, error) {
	var status model.ReleasePublishingStatus
	result := r.getDB(ctx).First(&status, "id = ? AND release_version_id = ?", key.ID, key.ReleaseVersionID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &status, nil
}

// GetLatest returns the most recently created attempt of a release version.
func (r *ReleaseStatusStore) GetLatest(ctx context.Context, releaseVersionID uuid.UUID) (*model.ReleasePublishingStatus, error) {
	statuses, err := r.List(ctx,
		NewReleaseStatusQueryFilter().ByReleaseVersionID(releaseVersionID),
		NewReleaseStatusQueryOptions().WithSortOrder(SortByCreatedTime).WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, ErrRecordNotFound
	}
	return &statuses[0], nil
}

func (r *ReleaseStatusStore) List(ctx context.Context, filter *ReleaseStatusQueryFilter, opts *ReleaseStatusQueryOptions) (model.ReleasePublishingStatusList, error) {
	var statuses model.ReleasePublishingStatusList
	tx := r.getDB(ctx).Model(&statuses)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&statuses).Error; err != nil {
		return nil, err
	}
	return statuses, nil
}

// Update reads the row, applies fn and writes it back only if nobody else
// wrote it in the meantime. On a lost race the row is read again and fn is
// re-applied to the fresh copy.
func (r *ReleaseStatusStore) Update(ctx context.Context, key model.ReleasePublishingKey, fn UpdateFunc) (*model.ReleasePublishingStatus, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		version := current.Version
		if err := fn(current); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return current, nil
			}
			return nil, err
		}

		current.Version = version + 1
		current.LastUpdated = time.Now().UTC()

		result := r.getDB(ctx).
			Model(&model.ReleasePublishingStatus{}).
			Where("id = ? AND release_version_id = ? AND version = ?", key.ID, key.ReleaseVersionID, version).
			Select("data_stage", "content_stage", "files_stage", "publishing_stage", "overall_stage", "log", "publish", "version", "last_updated").
			Updates(current)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			return current, nil
		}
	}
	return nil, ErrConcurrentUpdate
}

// UpdateStage sets one stage field, recomputes the overall stage and
// optionally appends a log message, all in a single write.
func (r *ReleaseStatusStore) UpdateStage(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, value string, logMessage *string) (*model.ReleasePublishingStatus, error) {
	return r.Update(ctx, key, func(status *model.ReleasePublishingStatus) error {
		state, err := status.State().Set(stage, value)
		if err != nil {
			return err
		}
		status.SetState(state)
		if logMessage != nil {
			status.AppendLog(time.Now().UTC(), *logMessage)
		}
		return nil
	})
}

func (r *ReleaseStatusStore) ListByOverall(ctx context.Context, stages ...publishing.OverallStage) (model.ReleasePublishingStatusList, error) {
	return r.List(ctx,
		NewReleaseStatusQueryFilter().ByOverallStage(stages...),
		NewReleaseStatusQueryOptions().WithSortOrder(SortByPublishTime),
	)
}

// Supersede marks every still scheduled attempt of a release version
// Superseded and returns the attempts it changed. An attempt that moved on
// in the meantime is left alone.
func (r *ReleaseStatusStore) Supersede(ctx context.Context, releaseVersionID uuid.UUID, reason string) (model.ReleasePublishingStatusList, error) {
	scheduled, err := r.List(ctx,
		NewReleaseStatusQueryFilter().ByReleaseVersionID(releaseVersionID).ByOverallStage(publishing.OverallScheduled),
		nil,
	)
	if err != nil {
		return nil, err
	}

	superseded := make(model.ReleasePublishingStatusList, 0, len(scheduled))
	for _, s := range scheduled {
		var changed bool
		updated, err := r.Update(ctx, s.Key(), func(status *model.ReleasePublishingStatus) error {
			changed = false
			if status.OverallStage != publishing.OverallScheduled {
				return ErrSkipUpdate
			}
			status.OverallStage = publishing.OverallSuperseded
			status.AppendLog(time.Now().UTC(), reason)
			changed = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if changed {
			superseded = append(superseded, *updated)
		}
	}
	return superseded, nil
}

func (r *ReleaseStatusStore) CountByOverallStage(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		OverallStage string
		Total        int64
	}
	err := r.getDB(ctx).
		Model(&model.ReleasePublishingStatus{}).
		Select("overall_stage, COUNT(*) AS total").
		Group("overall_stage").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.OverallStage] = row.Total
	}
	return counts, nil
}

func (r *ReleaseStatusStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}
