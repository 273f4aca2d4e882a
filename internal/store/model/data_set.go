package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/statspub/publisher/pkg/dataset"
)

type DataSetStatus string

const (
	DataSetStatusDraft      DataSetStatus = "Draft"
	DataSetStatusProcessing DataSetStatus = "Processing"
	DataSetStatusStaged     DataSetStatus = "Staged"
	DataSetStatusPublished  DataSetStatus = "Published"
	DataSetStatusFailed     DataSetStatus = "Failed"
)

// DataSet is a data file of a release version made queryable through the
// public data API once published.
type DataSet struct {
	ID               uuid.UUID                     `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	ReleaseVersionID uuid.UUID                     `gorm:"not null;type:VARCHAR(255);index:data_sets_release_version_id_idx"`
	Title            string                        `gorm:"not null"`
	SourcePath       string                        `gorm:"not null"`
	Status           DataSetStatus                 `gorm:"not null;type:VARCHAR(32)"`
	Indicators       *JSONField[[]string]          `gorm:"type:jsonb"`
	Labels           *JSONField[map[string]string] `gorm:"type:jsonb"`
	Meta             *JSONField[dataset.Meta]      `gorm:"type:jsonb"`
	ParquetPath      *string
	Error            *string `gorm:"type:TEXT"`
	Published        *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        *time.Time
}

type DataSetList []DataSet

// IngestOptions returns the column hints stored with the data set.
func (d DataSet) IngestOptions() dataset.IngestOptions {
	var opts dataset.IngestOptions
	if d.Indicators != nil {
		opts.Indicators = d.Indicators.Data
	}
	if d.Labels != nil {
		opts.Labels = d.Labels.Data
	}
	return opts
}

func (d DataSet) Queryable() bool {
	return d.Status == DataSetStatusPublished && d.Meta != nil && d.ParquetPath != nil
}
