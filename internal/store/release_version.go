package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/store/model"
)

type ReleaseVersion interface {
	List(ctx context.Context, filter *ReleaseVersionQueryFilter) (model.ReleaseVersionList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ReleaseVersion, error)
	Create(ctx context.Context, rv model.ReleaseVersion) (*model.ReleaseVersion, error)
	Update(ctx context.Context, rv model.ReleaseVersion) (*model.ReleaseVersion, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateFile(ctx context.Context, file model.ReleaseFile) error
}

type ReleaseVersionStore struct {
	db *gorm.DB
}

var _ ReleaseVersion = (*ReleaseVersionStore)(nil)

func NewReleaseVersionStore(db *gorm.DB) ReleaseVersion {
	return &ReleaseVersionStore{db: db}
}

func (r *ReleaseVersionStore) List(ctx context.Context, filter *ReleaseVersionQueryFilter) (model.ReleaseVersionList, error) {
	var versions model.ReleaseVersionList
	tx := r.getDB(ctx).Model(&versions).Order("created_at DESC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *ReleaseVersionStore) Get(ctx context.Context, id uuid.UUID) (*model.ReleaseVersion, error) {
	var rv model.ReleaseVersion
	result := r.getDB(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("release_files.created_at")
		}).
		Preload("DataSets", func(db *gorm.DB) *gorm.DB {
			return db.Order("data_sets.created_at")
		}).
		First(&rv, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &rv, nil
}

func (r *ReleaseVersionStore) Create(ctx context.Context, rv model.ReleaseVersion) (*model.ReleaseVersion, error) {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}
	now := time.Now().UTC()
	rv.CreatedAt = now
	for i := range rv.Files {
		if rv.Files[i].ID == uuid.Nil {
			rv.Files[i].ID = uuid.New()
		}
		rv.Files[i].CreatedAt = now
	}
	for i := range rv.DataSets {
		if rv.DataSets[i].ID == uuid.Nil {
			rv.DataSets[i].ID = uuid.New()
		}
		rv.DataSets[i].CreatedAt = now
	}

	if err := r.getDB(ctx).Create(&rv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	return r.Get(ctx, rv.ID)
}

// Update writes the release version columns. Files and data sets are left
// alone; they have their own update paths.
func (r *ReleaseVersionStore) Update(ctx context.Context, rv model.ReleaseVersion) (*model.ReleaseVersion, error) {
	now := time.Now().UTC()
	rv.UpdatedAt = &now

	result := r.getDB(ctx).
		Model(&model.ReleaseVersion{ID: rv.ID}).
		Select("title", "summary", "approval_status", "publish_scheduled", "published", "notify_subscribers", "version", "updated_at").
		Updates(&rv)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return r.Get(ctx, rv.ID)
}

func (r *ReleaseVersionStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.getDB(ctx).
		Model(&model.ReleaseVersion{}).
		Where("id = ?", id).
		Updates(map[string]any{"published": at, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *ReleaseVersionStore) UpdateFile(ctx context.Context, file model.ReleaseFile) error {
	return r.getDB(ctx).
		Model(&model.ReleaseFile{ID: file.ID}).
		Select("public_path", "size", "content_type").
		Updates(&file).Error
}

func (r *ReleaseVersionStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}
