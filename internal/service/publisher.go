package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/statspub/publisher/internal/events"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/opa"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/storage"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/dataset"
	"github.com/statspub/publisher/pkg/log"
	"github.com/statspub/publisher/pkg/metrics"
)

const (
	supersededMessage = "Superseded by a newer publishing attempt"
	overallStageName  = "Overall"
)

// errAttemptClosed stops a stage action for an attempt that was invalidated
// or superseded after its message was queued.
var errAttemptClosed = errors.New("publishing attempt is no longer active")

type ReleaseValidator interface {
	ValidateRelease(ctx context.Context, release opa.ReleaseInput, immediate bool, now time.Time) ([]string, error)
}

type DataSetIngester interface {
	Ingest(ctx context.Context, sourcePath, parquetPath string, opts dataset.IngestOptions) (*dataset.Meta, error)
}

type PublisherConfig struct {
	PrivateBucket   string
	PublicBucket    string
	DataSetsFolder  string
	StagingLeadTime time.Duration
}

// Publisher runs the publishing pipeline. Each exported stage method is the
// action behind one queue message.
type Publisher struct {
	store     store.Store
	queue     jobs.Queue
	blobs     storage.Storage
	validator ReleaseValidator
	ingester  DataSetIngester
	events    events.Publisher
	content   *ContentBuilder
	cfg       PublisherConfig
	now       func() time.Time
	logger    *log.StructuredLogger
}

var _ jobs.StageHandler = (*Publisher)(nil)

func NewPublisher(s store.Store, q jobs.Queue, blobs storage.Storage, validator ReleaseValidator, ingester DataSetIngester, ev events.Publisher, cfg PublisherConfig) *Publisher {
	return &Publisher{
		store:     s,
		queue:     q,
		blobs:     blobs,
		validator: validator,
		ingester:  ingester,
		events:    ev,
		content:   NewContentBuilder(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.NewDebugLogger("publisher"),
	}
}

// WithClock replaces the time source. Used by tests.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// NotifyChange validates a release version and opens a new publishing
// attempt for it. A valid attempt supersedes any still scheduled attempt of
// the same release version; an invalid one is recorded as Invalid with the
// reasons in its log and nothing is queued.
func (p *Publisher) NotifyChange(ctx context.Context, args jobs.NotifyChangeArgs) error {
	tracer := p.logger.WithContext(ctx).
		Operation("notify_change").
		WithUUID("release_version_id", args.ReleaseVersionID).
		WithBool("immediate", args.Immediate).
		Build()

	rv, err := p.store.ReleaseVersion().Get(ctx, args.ReleaseVersionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			err = NewErrReleaseVersionNotFound(args.ReleaseVersionID)
		}
		tracer.Error(err).Log()
		return err
	}

	now := p.now()
	reasons, err := p.validator.ValidateRelease(ctx, releaseInput(rv), args.Immediate, now)
	if err != nil {
		tracer.Error(err).Log()
		return err
	}
	tracer.Step("validated").WithParam("reasons", reasons).Log()

	status := model.ReleasePublishingStatus{
		ReleaseVersionID: rv.ID,
		ReleaseID:        rv.ReleaseID,
		PublicationSlug:  rv.PublicationSlug,
		ReleaseSlug:      rv.Slug,
		Immediate:        args.Immediate,
		Created:          now,
	}
	if !args.Immediate {
		status.Publish = rv.PublishScheduled
	}

	var created *model.ReleasePublishingStatus
	err = store.WithinTransaction(ctx, p.store, func(ctx context.Context) error {
		if len(reasons) > 0 {
			status.SetState(publishing.NewInvalidState())
			for _, r := range reasons {
				status.AppendLog(now, r)
			}
		} else {
			superseded, err := p.store.ReleaseStatus().Supersede(ctx, rv.ID, supersededMessage)
			if err != nil {
				return err
			}
			for _, s := range superseded {
				tracer.Step("superseded").WithString("release_status_id", s.ID.String()).Log()
			}

			if args.Immediate {
				status.SetState(publishing.NewImmediateState())
				status.AppendLog(now, "Publishing started")
			} else {
				status.SetState(publishing.NewScheduledState())
				status.AppendLog(now, fmt.Sprintf("Publishing scheduled for %s", rv.PublishScheduled.Format(time.RFC3339)))
			}
		}

		c, err := p.store.ReleaseStatus().Create(ctx, status)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	p.overallChanged(ctx, created)

	if created.OverallStage == publishing.OverallStarted {
		if err := p.queue.Enqueue(ctx, startMessages(created)...); err != nil {
			tracer.Error(err).Log()
			return err
		}
	}

	tracer.Success().WithString("overall_stage", string(created.OverallStage)).Log()
	return nil
}

// FailStage marks stage Failed and appends the error to the attempt log.
func (p *Publisher) FailStage(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, cause error) error {
	msg := fmt.Sprintf("%s stage failed: %s", stage, cause.Error())
	status, err := p.store.ReleaseStatus().UpdateStage(ctx, key, stage, failedValue(stage), &msg)
	if err != nil {
		return err
	}

	metrics.IncreaseStageFailuresMetric(string(stage))
	p.stageChanged(ctx, status, stage, failedValue(stage))
	p.events.Failed(ctx, events.ReleaseFailedEvent{
		ReleaseVersionID: key.ReleaseVersionID,
		ReleaseStatusID:  key.ID,
		Stage:            string(stage),
		Error:            cause.Error(),
	})
	return nil
}

// transition writes one stage value unless the attempt has been closed.
func (p *Publisher) transition(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, value, message string) (*model.ReleasePublishingStatus, error) {
	status, err := p.store.ReleaseStatus().Update(ctx, key, func(s *model.ReleasePublishingStatus) error {
		if s.OverallStage.IsAbsorbing() {
			return errAttemptClosed
		}
		state, err := s.State().Set(stage, value)
		if err != nil {
			return err
		}
		s.SetState(state)
		if message != "" {
			s.AppendLog(p.now(), message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.stageChanged(ctx, status, stage, value)
	return status, nil
}

// start marks stage as started. ok is false when the attempt is closed and
// the action must be skipped.
func (p *Publisher) start(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, value string) (status *model.ReleasePublishingStatus, ok bool, err error) {
	status, err = p.transition(ctx, key, stage, value, "")
	if err != nil {
		if errors.Is(err, errAttemptClosed) {
			p.logger.WithContext(ctx).Operation("start_stage").
				WithUUID("release_status_id", key.ID).
				WithString("stage", string(stage)).
				Build().Step("skipped closed attempt").Log()
			return nil, false, nil
		}
		return nil, false, err
	}
	return status, true, nil
}

// complete marks stage as complete and queues the publishing message when
// the attempt has become ready for it.
func (p *Publisher) complete(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, value, message string) error {
	status, err := p.transition(ctx, key, stage, value, message)
	if err != nil {
		if errors.Is(err, errAttemptClosed) {
			return nil
		}
		return err
	}

	if p.publishDue(status) {
		return p.queue.Enqueue(ctx, jobs.PublishReleaseContentArgs{StatusKey: jobs.NewStatusKey(status.Key())})
	}
	return nil
}

// publishDue reports whether an attempt can move to its publishing stage
// now. Scheduled attempts wait for their publish time.
func (p *Publisher) publishDue(status *model.ReleasePublishingStatus) bool {
	if !status.State().ReadyToPublish() {
		return false
	}
	if status.Immediate || status.Publish == nil {
		return true
	}
	return !status.Publish.After(p.now())
}

func (p *Publisher) stageChanged(ctx context.Context, status *model.ReleasePublishingStatus, stage publishing.StageName, value string) {
	emitStageChanged(ctx, p.events, status, string(stage), value)
}

func (p *Publisher) overallChanged(ctx context.Context, status *model.ReleasePublishingStatus) {
	emitStageChanged(ctx, p.events, status, overallStageName, string(status.OverallStage))
}

func emitStageChanged(ctx context.Context, ev events.Publisher, status *model.ReleasePublishingStatus, stage, value string) {
	metrics.IncreaseStageTransitionsMetric(stage, value)
	ev.StageChanged(ctx, events.StageChangedEvent{
		ReleaseVersionID: status.ReleaseVersionID,
		ReleaseStatusID:  status.ID,
		Stage:            stage,
		Value:            value,
		OverallStage:     string(status.OverallStage),
	})
}

func failedValue(stage publishing.StageName) string {
	switch stage {
	case publishing.StageData:
		return string(publishing.DataFailed)
	case publishing.StageContent:
		return string(publishing.ContentFailed)
	case publishing.StageFiles:
		return string(publishing.FilesFailed)
	default:
		return string(publishing.PublishingFailed)
	}
}

// startMessages are the stage messages that run as soon as an attempt starts.
func startMessages(status *model.ReleasePublishingStatus) []river.JobArgs {
	key := jobs.NewStatusKey(status.Key())
	msgs := []river.JobArgs{
		jobs.PublishReleaseFilesArgs{StatusKey: key},
		jobs.PublishReleaseDataArgs{StatusKey: key},
	}
	if status.Immediate {
		return append(msgs, jobs.GenerateReleaseContentArgs{StatusKey: key})
	}
	return append(msgs, jobs.StageReleaseContentArgs{StatusKey: key})
}

func releaseInput(rv *model.ReleaseVersion) opa.ReleaseInput {
	return opa.ReleaseInput{
		ApprovalStatus:   string(rv.ApprovalStatus),
		PublishScheduled: rv.PublishScheduled,
		Published:        rv.IsPublished(),
		FileCount:        len(rv.Files),
		DataSetCount:     len(rv.DataSets),
	}
}
