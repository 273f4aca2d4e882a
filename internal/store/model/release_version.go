package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ApprovalStatus string

const (
	ApprovalDraft        ApprovalStatus = "Draft"
	ApprovalHigherReview ApprovalStatus = "HigherLevelReview"
	ApprovalApproved     ApprovalStatus = "Approved"
)

// ReleaseVersion is one version of a release of a publication. Publishing
// attempts are tracked against it in ReleasePublishingStatus.
type ReleaseVersion struct {
	ID                uuid.UUID      `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	ReleaseID         uuid.UUID      `gorm:"not null;type:VARCHAR(255);index:release_versions_release_id_idx"`
	PublicationSlug   string         `gorm:"not null;type:VARCHAR(255)"`
	Slug              string         `gorm:"not null;type:VARCHAR(255)"`
	Title             string         `gorm:"not null"`
	Summary           string         `gorm:"type:TEXT"`
	ApprovalStatus    ApprovalStatus `gorm:"not null;type:VARCHAR(32)"`
	PublishScheduled  *time.Time
	Published         *time.Time
	NotifySubscribers bool      `gorm:"not null;default:false"`
	Version           int       `gorm:"not null;default:0"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         *time.Time
	Files             []ReleaseFile `gorm:"foreignKey:ReleaseVersionID;references:ID;constraint:OnDelete:CASCADE;"`
	DataSets          []DataSet     `gorm:"foreignKey:ReleaseVersionID;references:ID;constraint:OnDelete:CASCADE;"`
}

type FileType string

const (
	FileTypeAncillary FileType = "Ancillary"
	FileTypeData      FileType = "Data"
	FileTypeChart     FileType = "Chart"
	FileTypeImage     FileType = "Image"
)

// ReleaseFile is a file uploaded to the private bucket and copied to the
// public bucket when the release is published.
type ReleaseFile struct {
	ID               uuid.UUID `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	ReleaseVersionID uuid.UUID `gorm:"not null;type:VARCHAR(255);index:release_files_release_version_id_idx"`
	Name             string    `gorm:"not null"`
	Path             string    `gorm:"not null"`
	Type             FileType  `gorm:"not null;type:VARCHAR(32)"`
	ContentType      string    `gorm:"type:VARCHAR(255)"`
	Size             int64     `gorm:"not null;default:0"`
	PublicPath       *string
	CreatedAt        time.Time `gorm:"not null"`
}

type ReleaseVersionList []ReleaseVersion

func (r ReleaseVersion) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}

func (r ReleaseVersion) IsPublished() bool {
	return r.Published != nil
}
