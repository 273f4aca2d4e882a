package service

import (
	"encoding/json"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/statspub/publisher/internal/store/model"
)

const (
	contentFileName     = "release.json"
	stagingContentRoot  = "staging"
	liveContentRoot     = "live"
	publicFilesRoot     = "publications"
	dataSetSourceName   = "source.csv"
	dataSetParquetName  = "data.parquet"
)

// ReleaseContent is the document served to the public site for a release.
type ReleaseContent struct {
	ReleaseVersionID uuid.UUID        `json:"releaseVersionId"`
	ReleaseID        uuid.UUID        `json:"releaseId"`
	PublicationSlug  string           `json:"publicationSlug"`
	ReleaseSlug      string           `json:"releaseSlug"`
	Title            string           `json:"title"`
	Summary          string           `json:"summary,omitempty"`
	Published        time.Time        `json:"published"`
	Files            []FileContent    `json:"files"`
	DataSets         []DataSetContent `json:"dataSets"`
}

type FileContent struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
}

type DataSetContent struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

type ContentBuilder struct{}

func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{}
}

// Build renders the content document of a release version. Files and data
// sets keep the order they were added in.
func (b *ContentBuilder) Build(rv *model.ReleaseVersion, published time.Time) ([]byte, error) {
	content := ReleaseContent{
		ReleaseVersionID: rv.ID,
		ReleaseID:        rv.ReleaseID,
		PublicationSlug:  rv.PublicationSlug,
		ReleaseSlug:      rv.Slug,
		Title:            rv.Title,
		Summary:          rv.Summary,
		Published:        published.UTC(),
	}

	content.Files = funk.Map(rv.Files, func(f model.ReleaseFile) FileContent {
		return FileContent{
			ID:          f.ID,
			Name:        f.Name,
			Type:        string(f.Type),
			Path:        PublicFilePath(rv.PublicationSlug, rv.Slug, f.Name),
			ContentType: f.ContentType,
			Size:        f.Size,
		}
	}).([]FileContent)

	content.DataSets = funk.Map(rv.DataSets, func(d model.DataSet) DataSetContent {
		return DataSetContent{ID: d.ID, Title: d.Title}
	}).([]DataSetContent)

	return json.MarshalIndent(content, "", "  ")
}

// PublicFilePath is the key of a release file in the public bucket.
func PublicFilePath(publication, release, name string) string {
	return path.Join(publicFilesRoot, publication, "releases", release, "files", name)
}

// StagingContentPrefix is where content waits for the publish time.
func StagingContentPrefix(publication, release string) string {
	return path.Join(stagingContentRoot, publication, release) + "/"
}

// LiveContentPrefix is where the public site reads content from.
func LiveContentPrefix(publication, release string) string {
	return path.Join(liveContentRoot, publication, release) + "/"
}
