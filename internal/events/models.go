package events

import (
	"time"

	"github.com/google/uuid"
)

type StageChangedEvent struct {
	ReleaseVersionID uuid.UUID `json:"release_version_id"`
	ReleaseStatusID  uuid.UUID `json:"release_status_id"`
	Stage            string    `json:"stage"`
	Value            string    `json:"value"`
	OverallStage     string    `json:"overall_stage"`
}

type ReleaseFailedEvent struct {
	ReleaseVersionID uuid.UUID `json:"release_version_id"`
	ReleaseStatusID  uuid.UUID `json:"release_status_id"`
	Stage            string    `json:"stage"`
	Error            string    `json:"error"`
}

type ReleasePublishedEvent struct {
	ReleaseVersionID  uuid.UUID `json:"release_version_id"`
	ReleaseID         uuid.UUID `json:"release_id"`
	PublicationSlug   string    `json:"publication_slug"`
	ReleaseSlug       string    `json:"release_slug"`
	Published         time.Time `json:"published"`
	NotifySubscribers bool      `json:"notify_subscribers"`
}
