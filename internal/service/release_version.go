package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
)

type ReleaseVersionService struct {
	store store.Store
}

func NewReleaseVersionService(s store.Store) *ReleaseVersionService {
	return &ReleaseVersionService{store: s}
}

func (s *ReleaseVersionService) Create(ctx context.Context, rv model.ReleaseVersion) (*model.ReleaseVersion, error) {
	for i := range rv.DataSets {
		rv.DataSets[i].Status = model.DataSetStatusDraft
	}
	if rv.ApprovalStatus == "" {
		rv.ApprovalStatus = model.ApprovalDraft
	}
	return s.store.ReleaseVersion().Create(ctx, rv)
}

func (s *ReleaseVersionService) Get(ctx context.Context, id uuid.UUID) (*model.ReleaseVersion, error) {
	rv, err := s.store.ReleaseVersion().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrReleaseVersionNotFound(id)
		}
		return nil, err
	}
	return rv, nil
}

// Approve records the approval decision and publish date of a release
// version. Publishing itself is requested separately.
func (s *ReleaseVersionService) Approve(ctx context.Context, id uuid.UUID, status model.ApprovalStatus, publishScheduled *time.Time) (*model.ReleaseVersion, error) {
	rv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rv.ApprovalStatus = status
	rv.PublishScheduled = publishScheduled
	return s.store.ReleaseVersion().Update(ctx, *rv)
}
