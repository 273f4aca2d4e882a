package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/statspub/publisher/internal/events"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/log"
)

// StageStatus is the latest publishing attempt of a release version together
// with the queue messages still pending for it.
type StageStatus struct {
	Status     *model.ReleasePublishingStatus
	ActiveJobs []store.JobRow
}

type ReleaseStatusService struct {
	store  store.Store
	queue  jobs.Queue
	events events.Publisher
	now    func() time.Time
	logger *log.StructuredLogger
}

func NewReleaseStatusService(s store.Store, q jobs.Queue, ev events.Publisher) *ReleaseStatusService {
	return &ReleaseStatusService{
		store:  s,
		queue:  q,
		events: ev,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.NewDebugLogger("release_status_service"),
	}
}

func (s *ReleaseStatusService) WithClock(now func() time.Time) *ReleaseStatusService {
	s.now = now
	return s
}

func (s *ReleaseStatusService) GetStageStatus(ctx context.Context, releaseVersionID uuid.UUID) (*StageStatus, error) {
	status, err := s.latest(ctx, releaseVersionID)
	if err != nil {
		return nil, err
	}

	active, err := s.store.Job().ListActive(ctx, releaseVersionID)
	if err != nil {
		return nil, err
	}

	return &StageStatus{Status: status, ActiveJobs: active}, nil
}

// History lists every publishing attempt of a release version, newest first.
func (s *ReleaseStatusService) History(ctx context.Context, releaseVersionID uuid.UUID) (model.ReleasePublishingStatusList, error) {
	if _, err := s.releaseVersion(ctx, releaseVersionID); err != nil {
		return nil, err
	}
	return s.store.ReleaseStatus().List(ctx,
		store.NewReleaseStatusQueryFilter().ByReleaseVersionID(releaseVersionID),
		store.NewReleaseStatusQueryOptions().WithSortOrder(store.SortByCreatedTime),
	)
}

// RequestPublishing queues validation of a release version, which opens a
// new publishing attempt.
func (s *ReleaseStatusService) RequestPublishing(ctx context.Context, releaseVersionID uuid.UUID, immediate bool) error {
	if _, err := s.releaseVersion(ctx, releaseVersionID); err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: releaseVersionID, Immediate: immediate})
}

// RetryStage resets one stage of the latest attempt and queues its message
// again. Retrying data, content or publishing regenerates the staged content
// and republishes the release.
func (s *ReleaseStatusService) RetryStage(ctx context.Context, releaseVersionID uuid.UUID, stageName string) (*model.ReleasePublishingStatus, error) {
	stage, err := publishing.ParseStageName(stageName)
	if err != nil {
		return nil, NewErrInvalidStage(stageName)
	}

	tracer := s.logger.WithContext(ctx).
		Operation("retry_stage").
		WithUUID("release_version_id", releaseVersionID).
		WithString("stage", string(stage)).
		Build()

	latest, err := s.latest(ctx, releaseVersionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	status, err := s.store.ReleaseStatus().Update(ctx, latest.Key(), func(st *model.ReleasePublishingStatus) error {
		if !st.OverallStage.CanRetry() {
			return NewErrRetryRejected(releaseVersionID, st.OverallStage)
		}
		state, err := resetForRetry(st, stage, now)
		if err != nil {
			return err
		}
		st.SetState(state)
		st.AppendLog(now, fmt.Sprintf("Retrying %s stage", stage))
		return nil
	})
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	emitStageChanged(ctx, s.events, status, string(stage), status.State().Get(stage))

	if err := s.queue.Enqueue(ctx, retryMessages(status, stage, now)...); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().WithString("overall_stage", string(status.OverallStage)).Log()
	return status, nil
}

// RetryReleasePublishing opens a fresh immediate attempt for a release
// version whose latest attempt has finished.
func (s *ReleaseStatusService) RetryReleasePublishing(ctx context.Context, releaseVersionID uuid.UUID) error {
	latest, err := s.latest(ctx, releaseVersionID)
	if err != nil {
		return err
	}
	if !latest.OverallStage.CanRetry() {
		return NewErrRetryRejected(releaseVersionID, latest.OverallStage)
	}
	return s.queue.Enqueue(ctx, jobs.NotifyChangeArgs{ReleaseVersionID: releaseVersionID, Immediate: true})
}

// CancelScheduledPublishing cancels the latest attempt while it still waits
// for its publish time. A cancelled attempt is invalid and never resumes.
func (s *ReleaseStatusService) CancelScheduledPublishing(ctx context.Context, releaseVersionID uuid.UUID) (*model.ReleasePublishingStatus, error) {
	latest, err := s.latest(ctx, releaseVersionID)
	if err != nil {
		return nil, err
	}

	status, err := s.store.ReleaseStatus().Update(ctx, latest.Key(), func(st *model.ReleasePublishingStatus) error {
		if st.OverallStage != publishing.OverallScheduled {
			return NewErrCancelRejected(releaseVersionID, st.OverallStage)
		}
		state, err := st.State().Set(publishing.StagePublishing, string(publishing.PublishingCancelled))
		if err != nil {
			return err
		}
		st.SetState(state)
		st.AppendLog(s.now(), "Scheduled publishing cancelled")
		return nil
	})
	if err != nil {
		return nil, err
	}

	emitStageChanged(ctx, s.events, status, string(publishing.StagePublishing), string(publishing.PublishingCancelled))
	return status, nil
}

func (s *ReleaseStatusService) Statistics(ctx context.Context) (model.PublishingStats, error) {
	return s.store.Statistics(ctx)
}

func (s *ReleaseStatusService) latest(ctx context.Context, releaseVersionID uuid.UUID) (*model.ReleasePublishingStatus, error) {
	status, err := s.store.ReleaseStatus().GetLatest(ctx, releaseVersionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrReleaseStatusNotFound(releaseVersionID)
		}
		return nil, err
	}
	return status, nil
}

func (s *ReleaseStatusService) releaseVersion(ctx context.Context, id uuid.UUID) (*model.ReleaseVersion, error) {
	rv, err := s.store.ReleaseVersion().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrReleaseVersionNotFound(id)
		}
		return nil, err
	}
	return rv, nil
}

// resetForRetry returns the state of an attempt after stage is retried.
func resetForRetry(st *model.ReleasePublishingStatus, stage publishing.StageName, now time.Time) (publishing.State, error) {
	type reset struct {
		stage publishing.StageName
		value string
	}

	var resets []reset
	switch stage {
	case publishing.StageFiles:
		resets = append(resets, reset{publishing.StageFiles, string(publishing.FilesNotStarted)})
	case publishing.StageData:
		resets = append(resets,
			reset{publishing.StageData, string(publishing.DataQueued)},
			reset{publishing.StageContent, string(publishing.ContentNotStarted)},
			reset{publishing.StagePublishing, publishingResetValue(st, now)},
		)
	case publishing.StageContent, publishing.StagePublishing:
		resets = append(resets,
			reset{publishing.StageContent, string(publishing.ContentNotStarted)},
			reset{publishing.StagePublishing, publishingResetValue(st, now)},
		)
	}

	state := st.State()
	for _, r := range resets {
		var err error
		if state, err = state.Set(r.stage, r.value); err != nil {
			return state, err
		}
	}
	return state, nil
}

// publishingResetValue keeps a scheduled attempt waiting for the publish
// timer when its publish time has not come yet.
func publishingResetValue(st *model.ReleasePublishingStatus, now time.Time) string {
	if !st.Immediate && st.Publish != nil && st.Publish.After(now) {
		return string(publishing.PublishingScheduled)
	}
	return string(publishing.PublishingNotStarted)
}

// retryMessages are the messages that rerun stage. Every stage but files
// renders the content again before the release is republished.
func retryMessages(st *model.ReleasePublishingStatus, stage publishing.StageName, now time.Time) []river.JobArgs {
	beforePublish := !st.Immediate && st.Publish != nil && st.Publish.After(now)
	content, _ := jobs.ArgsForStage(publishing.StageContent, st.Key(), !beforePublish)

	switch stage {
	case publishing.StageFiles, publishing.StageData:
		msg, _ := jobs.ArgsForStage(stage, st.Key(), st.Immediate)
		if stage == publishing.StageFiles {
			return []river.JobArgs{msg}
		}
		return []river.JobArgs{msg, content}
	default:
		return []river.JobArgs{content}
	}
}
