package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/log"
)

// StageHandler performs the action behind each message kind.
type StageHandler interface {
	NotifyChange(ctx context.Context, args NotifyChangeArgs) error
	PublishReleaseFiles(ctx context.Context, args PublishReleaseFilesArgs) error
	PublishReleaseData(ctx context.Context, args PublishReleaseDataArgs) error
	GenerateReleaseContent(ctx context.Context, args GenerateReleaseContentArgs) error
	StageReleaseContent(ctx context.Context, args StageReleaseContentArgs) error
	PublishReleaseContent(ctx context.Context, args PublishReleaseContentArgs) error
	StageScheduledReleases(ctx context.Context, releaseVersionIDs []uuid.UUID) error
	PublishScheduledReleases(ctx context.Context, releaseVersionIDs []uuid.UUID) error
	// FailStage records err against the stage of the attempt.
	FailStage(ctx context.Context, key model.ReleasePublishingKey, stage publishing.StageName, err error) error
}

type stageArgs interface {
	river.JobArgs
	Key() model.ReleasePublishingKey
	Stage() publishing.StageName
}

// StageWorker runs one stage action. A failing action never reaches river:
// it is turned into a Failed stage on the attempt and the job completes, so
// the message is not retried.
type StageWorker[T stageArgs] struct {
	river.WorkerDefaults[T]
	handler StageHandler
	action  func(ctx context.Context, args T) error
	timeout time.Duration
	logger  *log.StructuredLogger
}

func NewStageWorker[T stageArgs](handler StageHandler, action func(ctx context.Context, args T) error, timeout time.Duration) *StageWorker[T] {
	return &StageWorker[T]{
		handler: handler,
		action:  action,
		timeout: timeout,
		logger:  log.NewDebugLogger("stage_worker"),
	}
}

func (w *StageWorker[T]) Timeout(*river.Job[T]) time.Duration {
	return w.timeout
}

func (w *StageWorker[T]) Work(ctx context.Context, job *river.Job[T]) error {
	key := job.Args.Key()
	stage := job.Args.Stage()
	tracer := w.logger.WithContext(ctx).
		Operation(job.Args.Kind()).
		WithUUID("release_version_id", key.ReleaseVersionID).
		WithUUID("release_status_id", key.ID).
		WithString("stage", string(stage)).
		Build()

	if err := w.action(ctx, job.Args); err != nil {
		tracer.Error(err).Log()
		// the job context may be past its deadline, the failure must still be recorded
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return w.handler.FailStage(failCtx, key, stage, err)
	}

	tracer.Success().Log()
	return nil
}

type NotifyChangeWorker struct {
	river.WorkerDefaults[NotifyChangeArgs]
	handler StageHandler
	timeout time.Duration
}

func NewNotifyChangeWorker(handler StageHandler, timeout time.Duration) *NotifyChangeWorker {
	return &NotifyChangeWorker{handler: handler, timeout: timeout}
}

func (w *NotifyChangeWorker) Timeout(*river.Job[NotifyChangeArgs]) time.Duration {
	return w.timeout
}

func (w *NotifyChangeWorker) Work(ctx context.Context, job *river.Job[NotifyChangeArgs]) error {
	return w.handler.NotifyChange(ctx, job.Args)
}

type StageScheduledReleasesWorker struct {
	river.WorkerDefaults[StageScheduledReleasesArgs]
	handler StageHandler
}

func NewStageScheduledReleasesWorker(handler StageHandler) *StageScheduledReleasesWorker {
	return &StageScheduledReleasesWorker{handler: handler}
}

func (w *StageScheduledReleasesWorker) Work(ctx context.Context, job *river.Job[StageScheduledReleasesArgs]) error {
	return w.handler.StageScheduledReleases(ctx, job.Args.ReleaseVersionIDs)
}

type PublishScheduledReleasesWorker struct {
	river.WorkerDefaults[PublishScheduledReleasesArgs]
	handler StageHandler
}

func NewPublishScheduledReleasesWorker(handler StageHandler) *PublishScheduledReleasesWorker {
	return &PublishScheduledReleasesWorker{handler: handler}
}

func (w *PublishScheduledReleasesWorker) Work(ctx context.Context, job *river.Job[PublishScheduledReleasesArgs]) error {
	return w.handler.PublishScheduledReleases(ctx, job.Args.ReleaseVersionIDs)
}

// NewWorkers registers one worker per message kind.
func NewWorkers(handler StageHandler, stageTimeout time.Duration) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[NotifyChangeArgs](workers, NewNotifyChangeWorker(handler, stageTimeout))
	river.AddWorker[PublishReleaseFilesArgs](workers, NewStageWorker(handler, handler.PublishReleaseFiles, stageTimeout))
	river.AddWorker[PublishReleaseDataArgs](workers, NewStageWorker(handler, handler.PublishReleaseData, stageTimeout))
	river.AddWorker[GenerateReleaseContentArgs](workers, NewStageWorker(handler, handler.GenerateReleaseContent, stageTimeout))
	river.AddWorker[StageReleaseContentArgs](workers, NewStageWorker(handler, handler.StageReleaseContent, stageTimeout))
	river.AddWorker[PublishReleaseContentArgs](workers, NewStageWorker(handler, handler.PublishReleaseContent, stageTimeout))
	river.AddWorker[StageScheduledReleasesArgs](workers, NewStageScheduledReleasesWorker(handler))
	river.AddWorker[PublishScheduledReleasesArgs](workers, NewPublishScheduledReleasesWorker(handler))
	return workers
}
