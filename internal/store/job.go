package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"
	"gorm.io/gorm"
)

// JobRow represents a row from the river_job table
type JobRow struct {
	ID        int64              `gorm:"column:id;primaryKey"`
	State     rivertype.JobState `gorm:"column:state"`
	Kind      string             `gorm:"column:kind"`
	ArgsJSON  string             `gorm:"column:args"`
	Attempt   int                `gorm:"column:attempt"`
	CreatedAt time.Time          `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (JobRow) TableName() string {
	return "river_job"
}

var activeJobStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

type Job interface {
	Get(ctx context.Context, id int64) (*JobRow, error)
	// ListActive returns jobs of a release version that are queued or running.
	ListActive(ctx context.Context, releaseVersionID uuid.UUID) ([]JobRow, error)
}

type JobStore struct {
	db *gorm.DB
}

var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) Get(ctx context.Context, id int64) (*JobRow, error) {
	var jobRow JobRow
	result := s.getDB(ctx).First(&jobRow, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}

	return &jobRow, nil
}

func (s *JobStore) ListActive(ctx context.Context, releaseVersionID uuid.UUID) ([]JobRow, error) {
	var rows []JobRow
	err := s.getDB(ctx).
		Where("state IN ?", activeJobStates).
		Where("args->>'releaseVersionId' = ?", releaseVersionID.String()).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing active jobs: %w", err)
	}
	return rows, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
