package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/statspub/publisher/internal/publishing"
)

// ReleasePublishingStatus is one publishing attempt of a release version.
type ReleasePublishingStatus struct {
	ID               uuid.UUID                    `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	ReleaseVersionID uuid.UUID                    `gorm:"not null;type:VARCHAR(255);index:release_publishing_statuses_release_version_id_idx"`
	ReleaseID        uuid.UUID                    `gorm:"not null;type:VARCHAR(255)"`
	PublicationSlug  string                       `gorm:"not null;type:VARCHAR(255)"`
	ReleaseSlug      string                       `gorm:"not null;type:VARCHAR(255)"`
	Immediate        bool                         `gorm:"not null;default:false"`
	Publish          *time.Time                   `gorm:"column:publish"`
	DataStage        publishing.DataStage         `gorm:"not null;type:VARCHAR(32)"`
	ContentStage     publishing.ContentStage      `gorm:"not null;type:VARCHAR(32)"`
	FilesStage       publishing.FilesStage        `gorm:"not null;type:VARCHAR(32)"`
	PublishingStage  publishing.PublishingStage   `gorm:"not null;type:VARCHAR(32)"`
	OverallStage     publishing.OverallStage      `gorm:"not null;type:VARCHAR(32);index:release_publishing_statuses_overall_stage_idx"`
	Log              *JSONField[[]StatusLogEntry] `gorm:"type:jsonb"`
	Version          int                          `gorm:"not null;default:1"`
	Created          time.Time                    `gorm:"not null"`
	LastUpdated      time.Time                    `gorm:"not null"`
}

type StatusLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type ReleasePublishingStatusList []ReleasePublishingStatus

func (s ReleasePublishingStatus) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}

func (s ReleasePublishingStatus) State() publishing.State {
	return publishing.State{
		Data:       s.DataStage,
		Content:    s.ContentStage,
		Files:      s.FilesStage,
		Publishing: s.PublishingStage,
		Overall:    s.OverallStage,
	}
}

func (s *ReleasePublishingStatus) SetState(state publishing.State) {
	s.DataStage = state.Data
	s.ContentStage = state.Content
	s.FilesStage = state.Files
	s.PublishingStage = state.Publishing
	s.OverallStage = state.Overall
}

// AppendLog adds a message to the end of the attempt log.
func (s *ReleasePublishingStatus) AppendLog(at time.Time, message string) {
	if s.Log == nil {
		s.Log = MakeJSONField([]StatusLogEntry{})
	}
	s.Log.Data = append(s.Log.Data, StatusLogEntry{Timestamp: at, Message: message})
}

func (s ReleasePublishingStatus) Messages() []StatusLogEntry {
	if s.Log == nil {
		return nil
	}
	return s.Log.Data
}

// Key addresses one attempt of a release version.
type ReleasePublishingKey struct {
	ReleaseVersionID uuid.UUID
	ID               uuid.UUID
}

func (s ReleasePublishingStatus) Key() ReleasePublishingKey {
	return ReleasePublishingKey{ReleaseVersionID: s.ReleaseVersionID, ID: s.ID}
}
