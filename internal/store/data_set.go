package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/store/model"
)

type DataSet interface {
	Get(ctx context.Context, id uuid.UUID) (*model.DataSet, error)
	ListByReleaseVersion(ctx context.Context, releaseVersionID uuid.UUID) (model.DataSetList, error)
	Update(ctx context.Context, ds model.DataSet) (*model.DataSet, error)
	Publish(ctx context.Context, releaseVersionID uuid.UUID, at time.Time) error
}

type DataSetStore struct {
	db *gorm.DB
}

var _ DataSet = (*DataSetStore)(nil)

func NewDataSetStore(db *gorm.DB) DataSet {
	return &DataSetStore{db: db}
}

func (d *DataSetStore) Get(ctx context.Context, id uuid.UUID) (*model.DataSet, error) {
	var ds model.DataSet
	if err := d.getDB(ctx).First(&ds, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &ds, nil
}

func (d *DataSetStore) ListByReleaseVersion(ctx context.Context, releaseVersionID uuid.UUID) (model.DataSetList, error) {
	var list model.DataSetList
	if err := d.getDB(ctx).Where("release_version_id = ?", releaseVersionID).Order("created_at").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DataSetStore) Update(ctx context.Context, ds model.DataSet) (*model.DataSet, error) {
	now := time.Now().UTC()
	ds.UpdatedAt = &now

	result := d.getDB(ctx).
		Model(&model.DataSet{ID: ds.ID}).
		Select("status", "meta", "parquet_path", "error", "published", "updated_at").
		Updates(&ds)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return d.Get(ctx, ds.ID)
}

// Publish flips every staged data set of a release version to published.
func (d *DataSetStore) Publish(ctx context.Context, releaseVersionID uuid.UUID, at time.Time) error {
	return d.getDB(ctx).
		Model(&model.DataSet{}).
		Where("release_version_id = ? AND status = ?", releaseVersionID, model.DataSetStatusStaged).
		Updates(map[string]any{
			"status":     model.DataSetStatusPublished,
			"published":  at,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (d *DataSetStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return d.db.WithContext(ctx)
}
