package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type Error struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type ReleasePublishingStatus struct {
	ReleaseVersionId uuid.UUID  `json:"releaseVersionId"`
	ReleaseStatusId  uuid.UUID  `json:"releaseStatusId"`
	ReleaseId        uuid.UUID  `json:"releaseId"`
	PublicationSlug  string     `json:"publicationSlug"`
	ReleaseSlug      string     `json:"releaseSlug"`
	Immediate        bool       `json:"immediate"`
	Publish          *time.Time `json:"publish,omitempty"`
	DataStage        string     `json:"dataStage"`
	ContentStage     string     `json:"contentStage"`
	FilesStage       string     `json:"filesStage"`
	PublishingStage  string     `json:"publishingStage"`
	OverallStage     string     `json:"overallStage"`
	Log              []LogEntry `json:"log"`
	Created          time.Time  `json:"created"`
	LastUpdated      time.Time  `json:"lastUpdated"`
}

type ActiveJob struct {
	Id        int64     `json:"id"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"createdAt"`
}

type StageStatus struct {
	Status     ReleasePublishingStatus `json:"status"`
	ActiveJobs []ActiveJob             `json:"activeJobs"`
}

type PublishRequest struct {
	Immediate bool `json:"immediate"`
}

type RetryStageRequest struct {
	Stage string `json:"stage" validate:"required,stage_name"`
}

type TimerTriggerRequest struct {
	ReleaseVersionIds []uuid.UUID `json:"releaseVersionIds,omitempty" validate:"dive,release_version_id"`
}

type PublishingStatistics struct {
	Total          int64            `json:"total"`
	ByOverallStage map[string]int64 `json:"byOverallStage"`
}

type ReleaseFile struct {
	Id          *uuid.UUID `json:"id,omitempty"`
	Name        string     `json:"name" validate:"required,max=255"`
	Path        string     `json:"path" validate:"required,blob_path"`
	Type        string     `json:"type" validate:"required,oneof=Ancillary Data Chart Image"`
	ContentType string     `json:"contentType,omitempty"`
	Size        int64      `json:"size,omitempty" validate:"gte=0"`
	PublicPath  *string    `json:"publicPath,omitempty"`
}

type DataSet struct {
	Id         *uuid.UUID        `json:"id,omitempty"`
	Title      string            `json:"title" validate:"required,max=255"`
	SourcePath string            `json:"sourcePath" validate:"required,blob_path"`
	Status     string            `json:"status,omitempty"`
	Indicators []string          `json:"indicators,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Error      *string           `json:"error,omitempty"`
	Published  *time.Time        `json:"published,omitempty"`
}

type ReleaseVersionCreate struct {
	ReleaseId         uuid.UUID     `json:"releaseId" validate:"release_version_id"`
	PublicationSlug   string        `json:"publicationSlug" validate:"required,slug"`
	Slug              string        `json:"slug" validate:"required,slug"`
	Title             string        `json:"title" validate:"required,max=255"`
	Summary           string        `json:"summary,omitempty"`
	NotifySubscribers bool          `json:"notifySubscribers,omitempty"`
	Files             []ReleaseFile `json:"files,omitempty" validate:"dive"`
	DataSets          []DataSet     `json:"dataSets,omitempty" validate:"dive"`
}

type ReleaseVersionApproval struct {
	ApprovalStatus   string     `json:"approvalStatus" validate:"required,oneof=Draft HigherLevelReview Approved"`
	PublishScheduled *time.Time `json:"publishScheduled,omitempty"`
}

type ReleaseVersion struct {
	Id                uuid.UUID     `json:"id"`
	ReleaseId         uuid.UUID     `json:"releaseId"`
	PublicationSlug   string        `json:"publicationSlug"`
	Slug              string        `json:"slug"`
	Title             string        `json:"title"`
	Summary           string        `json:"summary,omitempty"`
	ApprovalStatus    string        `json:"approvalStatus"`
	PublishScheduled  *time.Time    `json:"publishScheduled,omitempty"`
	Published         *time.Time    `json:"published,omitempty"`
	NotifySubscribers bool          `json:"notifySubscribers"`
	Files             []ReleaseFile `json:"files"`
	DataSets          []DataSet     `json:"dataSets"`
}
