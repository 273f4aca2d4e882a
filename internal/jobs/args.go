package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/store/model"
)

const (
	DefaultQueue   = "publisher"
	TimerQueue     = "publisher_timers"
	MaxJobAttempts = 1

	NotifyChangeKind             = "notify_change"
	PublishReleaseFilesKind      = "publish_release_files"
	PublishReleaseDataKind       = "publish_release_data"
	GenerateReleaseContentKind   = "generate_release_content"
	StageReleaseContentKind      = "stage_release_content"
	PublishReleaseContentKind    = "publish_release_content"
	StageScheduledReleasesKind   = "stage_scheduled_releases"
	PublishScheduledReleasesKind = "publish_scheduled_releases"
)

// pendingStates are the states in which an identical message counts as a duplicate.
var pendingStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRetryable,
	rivertype.JobStateRunning,
	rivertype.JobStateScheduled,
}

func insertOpts(queue string) river.InsertOpts {
	return river.InsertOpts{
		Queue:       queue,
		MaxAttempts: MaxJobAttempts,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: pendingStates,
		},
	}
}

// StatusKey addresses the publishing attempt a stage message belongs to.
// The json names are queried from river_job.args.
type StatusKey struct {
	ReleaseVersionID uuid.UUID `json:"releaseVersionId"`
	ReleaseStatusID  uuid.UUID `json:"releaseStatusId"`
}

func NewStatusKey(key model.ReleasePublishingKey) StatusKey {
	return StatusKey{ReleaseVersionID: key.ReleaseVersionID, ReleaseStatusID: key.ID}
}

func (k StatusKey) Key() model.ReleasePublishingKey {
	return model.ReleasePublishingKey{ReleaseVersionID: k.ReleaseVersionID, ID: k.ReleaseStatusID}
}

// NotifyChangeArgs asks for a release version to be validated and scheduled
// or started.
type NotifyChangeArgs struct {
	ReleaseVersionID uuid.UUID `json:"releaseVersionId"`
	Immediate        bool      `json:"immediate"`
}

func (NotifyChangeArgs) Kind() string { return NotifyChangeKind }

func (NotifyChangeArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

type PublishReleaseFilesArgs struct {
	StatusKey
}

func (PublishReleaseFilesArgs) Kind() string { return PublishReleaseFilesKind }

func (PublishReleaseFilesArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

func (PublishReleaseFilesArgs) Stage() publishing.StageName { return publishing.StageFiles }

type PublishReleaseDataArgs struct {
	StatusKey
}

func (PublishReleaseDataArgs) Kind() string { return PublishReleaseDataKind }

func (PublishReleaseDataArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

func (PublishReleaseDataArgs) Stage() publishing.StageName { return publishing.StageData }

// GenerateReleaseContentArgs renders the content of an immediate release.
type GenerateReleaseContentArgs struct {
	StatusKey
}

func (GenerateReleaseContentArgs) Kind() string { return GenerateReleaseContentKind }

func (GenerateReleaseContentArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

func (GenerateReleaseContentArgs) Stage() publishing.StageName { return publishing.StageContent }

// StageReleaseContentArgs renders the content of a scheduled release ahead
// of its publish time.
type StageReleaseContentArgs struct {
	StatusKey
}

func (StageReleaseContentArgs) Kind() string { return StageReleaseContentKind }

func (StageReleaseContentArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

func (StageReleaseContentArgs) Stage() publishing.StageName { return publishing.StageContent }

type PublishReleaseContentArgs struct {
	StatusKey
}

func (PublishReleaseContentArgs) Kind() string { return PublishReleaseContentKind }

func (PublishReleaseContentArgs) InsertOpts() river.InsertOpts { return insertOpts(DefaultQueue) }

func (PublishReleaseContentArgs) Stage() publishing.StageName { return publishing.StagePublishing }

// StageScheduledReleasesArgs runs the staging timer. ReleaseVersionIDs
// narrows a manual run to the given release versions.
type StageScheduledReleasesArgs struct {
	ReleaseVersionIDs []uuid.UUID `json:"releaseVersionIds,omitempty"`
}

func (StageScheduledReleasesArgs) Kind() string { return StageScheduledReleasesKind }

func (StageScheduledReleasesArgs) InsertOpts() river.InsertOpts { return insertOpts(TimerQueue) }

type PublishScheduledReleasesArgs struct {
	ReleaseVersionIDs []uuid.UUID `json:"releaseVersionIds,omitempty"`
}

func (PublishScheduledReleasesArgs) Kind() string { return PublishScheduledReleasesKind }

func (PublishScheduledReleasesArgs) InsertOpts() river.InsertOpts { return insertOpts(TimerQueue) }

// ArgsForStage returns the message that runs stage again for an attempt.
// Content maps to the immediate or scheduled rendering depending on the
// attempt.
func ArgsForStage(stage publishing.StageName, key model.ReleasePublishingKey, immediate bool) (river.JobArgs, bool) {
	k := NewStatusKey(key)
	switch stage {
	case publishing.StageFiles:
		return PublishReleaseFilesArgs{StatusKey: k}, true
	case publishing.StageData:
		return PublishReleaseDataArgs{StatusKey: k}, true
	case publishing.StageContent:
		if immediate {
			return GenerateReleaseContentArgs{StatusKey: k}, true
		}
		return StageReleaseContentArgs{StatusKey: k}, true
	case publishing.StagePublishing:
		return PublishReleaseContentArgs{StatusKey: k}, true
	}
	return nil, false
}
