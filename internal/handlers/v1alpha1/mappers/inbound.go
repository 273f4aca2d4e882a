package mappers

import (
	"time"

	"github.com/google/uuid"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/store/model"
)

func ReleaseVersionFormToModel(form api.ReleaseVersionCreate) model.ReleaseVersion {
	id := uuid.New()
	now := time.Now().UTC()

	rv := model.ReleaseVersion{
		ID:                id,
		ReleaseID:         form.ReleaseId,
		PublicationSlug:   form.PublicationSlug,
		Slug:              form.Slug,
		Title:             form.Title,
		Summary:           form.Summary,
		NotifySubscribers: form.NotifySubscribers,
		Files:             make([]model.ReleaseFile, 0, len(form.Files)),
		DataSets:          make([]model.DataSet, 0, len(form.DataSets)),
	}

	for _, f := range form.Files {
		rv.Files = append(rv.Files, model.ReleaseFile{
			ID:               idOrNew(f.Id),
			ReleaseVersionID: id,
			Name:             f.Name,
			Path:             f.Path,
			Type:             model.FileType(f.Type),
			ContentType:      f.ContentType,
			Size:             f.Size,
			CreatedAt:        now,
		})
	}

	for _, d := range form.DataSets {
		ds := model.DataSet{
			ID:               idOrNew(d.Id),
			ReleaseVersionID: id,
			Title:            d.Title,
			SourcePath:       d.SourcePath,
			CreatedAt:        now,
		}
		if len(d.Indicators) > 0 {
			ds.Indicators = model.MakeJSONField(d.Indicators)
		}
		if len(d.Labels) > 0 {
			ds.Labels = model.MakeJSONField(d.Labels)
		}
		rv.DataSets = append(rv.DataSets, ds)
	}

	return rv
}

func idOrNew(id *uuid.UUID) uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return uuid.New()
	}
	return *id
}
