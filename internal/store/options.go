package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/publishing"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type ReleaseStatusQueryFilter BaseQuerier

func NewReleaseStatusQueryFilter() *ReleaseStatusQueryFilter {
	return &ReleaseStatusQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ReleaseStatusQueryFilter) ByReleaseVersionID(id uuid.UUID) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("release_version_id = ?", id)
	})
	return qf
}

func (qf *ReleaseStatusQueryFilter) ByReleaseID(id uuid.UUID) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("release_id = ?", id)
	})
	return qf
}

func (qf *ReleaseStatusQueryFilter) ByOverallStage(stages ...publishing.OverallStage) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("overall_stage IN ?", stages)
	})
	return qf
}

// ByScheduled keeps attempts waiting for a publish time.
func (qf *ReleaseStatusQueryFilter) ByScheduled() *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("immediate = ?", false)
	})
	return qf
}

func (qf *ReleaseStatusQueryFilter) ByPublishBefore(t time.Time) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("publish IS NOT NULL AND publish <= ?", t)
	})
	return qf
}

func (qf *ReleaseStatusQueryFilter) ByContentStage(stages ...publishing.ContentStage) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("content_stage IN ?", stages)
	})
	return qf
}

func (qf *ReleaseStatusQueryFilter) ByPublishingStage(stages ...publishing.PublishingStage) *ReleaseStatusQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("publishing_stage IN ?", stages)
	})
	return qf
}

// ByReleaseVersionIDs restricts the result to the given release versions. An
// empty list leaves the filter unchanged.
func (qf *ReleaseStatusQueryFilter) ByReleaseVersionIDs(ids ...uuid.UUID) *ReleaseStatusQueryFilter {
	if len(ids) == 0 {
		return qf
	}
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("release_version_id IN ?", ids)
	})
	return qf
}

type ReleaseStatusQueryOptions BaseQuerier

func NewReleaseStatusQueryOptions() *ReleaseStatusQueryOptions {
	return &ReleaseStatusQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *ReleaseStatusQueryOptions) WithSortOrder(sort SortOrder) *ReleaseStatusQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByCreatedTime:
			return tx.Order("created DESC").Order("id")
		case SortByUpdatedTime:
			return tx.Order("last_updated DESC").Order("id")
		case SortByPublishTime:
			return tx.Order("publish").Order("created")
		default:
			return tx
		}
	})
	return o
}

func (o *ReleaseStatusQueryOptions) WithLimit(limit int) *ReleaseStatusQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

type ReleaseVersionQueryFilter BaseQuerier

func NewReleaseVersionQueryFilter() *ReleaseVersionQueryFilter {
	return &ReleaseVersionQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ReleaseVersionQueryFilter) ByReleaseID(id uuid.UUID) *ReleaseVersionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("release_id = ?", id)
	})
	return qf
}

func (qf *ReleaseVersionQueryFilter) ByPublished(published bool) *ReleaseVersionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if published {
			return tx.Where("published IS NOT NULL")
		}
		return tx.Where("published IS NULL")
	})
	return qf
}

func (qf *ReleaseVersionQueryFilter) ByPublicationSlug(slug string) *ReleaseVersionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("publication_slug = ?", slug)
	})
	return qf
}
