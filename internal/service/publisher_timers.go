package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
)

// StageScheduledReleases starts every scheduled attempt whose publish time
// falls within the staging lead time. When ids are given only those release
// versions are considered and the lead time is ignored.
func (p *Publisher) StageScheduledReleases(ctx context.Context, ids []uuid.UUID) error {
	tracer := p.logger.WithContext(ctx).
		Operation("stage_scheduled_releases").
		WithParam("release_version_ids", ids).
		Build()

	filter := store.NewReleaseStatusQueryFilter().
		ByOverallStage(publishing.OverallScheduled).
		ByScheduled().
		ByReleaseVersionIDs(ids...)
	if len(ids) == 0 {
		filter = filter.ByPublishBefore(p.now().Add(p.cfg.StagingLeadTime))
	}

	candidates, err := p.store.ReleaseStatus().List(ctx, filter, store.NewReleaseStatusQueryOptions().WithSortOrder(store.SortByPublishTime))
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	var (
		msgs   []river.JobArgs
		staged int
	)
	for _, c := range candidates {
		started, err := p.store.ReleaseStatus().Update(ctx, c.Key(), func(s *model.ReleasePublishingStatus) error {
			if s.OverallStage != publishing.OverallScheduled {
				return errAttemptClosed
			}
			state, err := s.State().Set(publishing.StageData, string(publishing.DataQueued))
			if err != nil {
				return err
			}
			s.SetState(state)
			s.AppendLog(p.now(), "Staging started")
			return nil
		})
		if err != nil {
			if errors.Is(err, errAttemptClosed) {
				continue
			}
			tracer.Error(err).Log()
			return err
		}

		p.overallChanged(ctx, started)
		msgs = append(msgs, startMessages(started)...)
		staged++
		tracer.Step("staging").WithUUID("release_status_id", started.ID).Log()
	}

	if len(msgs) > 0 {
		if err := p.queue.Enqueue(ctx, msgs...); err != nil {
			tracer.Error(err).Log()
			return err
		}
	}

	tracer.Success().WithInt("staged", staged).Log()
	return nil
}

// PublishScheduledReleases queues the publishing stage of every started
// scheduled attempt that is ready and due. When ids are given only those
// release versions are considered and the publish time is ignored.
func (p *Publisher) PublishScheduledReleases(ctx context.Context, ids []uuid.UUID) error {
	tracer := p.logger.WithContext(ctx).
		Operation("publish_scheduled_releases").
		WithParam("release_version_ids", ids).
		Build()

	filter := store.NewReleaseStatusQueryFilter().
		ByOverallStage(publishing.OverallStarted).
		ByPublishingStage(publishing.PublishingScheduled).
		ByScheduled().
		ByReleaseVersionIDs(ids...)
	if len(ids) == 0 {
		filter = filter.ByPublishBefore(p.now())
	}

	candidates, err := p.store.ReleaseStatus().List(ctx, filter, store.NewReleaseStatusQueryOptions().WithSortOrder(store.SortByPublishTime))
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	var msgs []river.JobArgs
	for _, c := range candidates {
		if !c.State().ReadyToPublish() {
			tracer.Step("not ready").WithUUID("release_status_id", c.ID).Log()
			continue
		}
		msgs = append(msgs, jobs.PublishReleaseContentArgs{StatusKey: jobs.NewStatusKey(c.Key())})
	}

	if len(msgs) > 0 {
		if err := p.queue.Enqueue(ctx, msgs...); err != nil {
			tracer.Error(err).Log()
			return err
		}
	}

	tracer.Success().WithInt("queued", len(msgs)).Log()
	return nil
}
