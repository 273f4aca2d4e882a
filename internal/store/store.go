package store

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/statspub/publisher/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	ReleaseStatus() ReleaseStatus
	ReleaseVersion() ReleaseVersion
	DataSet() DataSet
	Job() Job
	Statistics(ctx context.Context) (model.PublishingStats, error)
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db             *gorm.DB
	log            logrus.FieldLogger
	releaseStatus  ReleaseStatus
	releaseVersion ReleaseVersion
	dataSet        DataSet
	job            Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:             db,
		log:            logrus.WithField("component", "store"),
		releaseStatus:  NewReleaseStatusStore(db),
		releaseVersion: NewReleaseVersionStore(db),
		dataSet:        NewCachedDataSetStore(NewDataSetStore(db)),
		job:            NewJobStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db, s.log)
}

func (s *DataStore) ReleaseStatus() ReleaseStatus {
	return s.releaseStatus
}

func (s *DataStore) ReleaseVersion() ReleaseVersion {
	return s.releaseVersion
}

func (s *DataStore) DataSet() DataSet {
	return s.dataSet
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Statistics(ctx context.Context) (model.PublishingStats, error) {
	counts, err := s.releaseStatus.CountByOverallStage(ctx)
	if err != nil {
		return model.PublishingStats{}, err
	}
	return model.NewPublishingStats(counts), nil
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
