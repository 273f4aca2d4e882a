package mappers

import (
	"sort"

	"github.com/thoas/go-funk"

	api "github.com/statspub/publisher/api/v1alpha1"
	"github.com/statspub/publisher/internal/service"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
)

func ReleaseStatusToApi(s model.ReleasePublishingStatus) api.ReleasePublishingStatus {
	entries := s.Messages()
	log := make([]api.LogEntry, 0, len(entries))
	for _, e := range entries {
		log = append(log, api.LogEntry{Timestamp: e.Timestamp, Message: e.Message})
	}

	return api.ReleasePublishingStatus{
		ReleaseVersionId: s.ReleaseVersionID,
		ReleaseStatusId:  s.ID,
		ReleaseId:        s.ReleaseID,
		PublicationSlug:  s.PublicationSlug,
		ReleaseSlug:      s.ReleaseSlug,
		Immediate:        s.Immediate,
		Publish:          s.Publish,
		DataStage:        string(s.DataStage),
		ContentStage:     string(s.ContentStage),
		FilesStage:       string(s.FilesStage),
		PublishingStage:  string(s.PublishingStage),
		OverallStage:     string(s.OverallStage),
		Log:              log,
		Created:          s.Created,
		LastUpdated:      s.LastUpdated,
	}
}

func ReleaseStatusListToApi(list model.ReleasePublishingStatusList) []api.ReleasePublishingStatus {
	return funk.Map(list, ReleaseStatusToApi).([]api.ReleasePublishingStatus)
}

func StageStatusToApi(s *service.StageStatus) api.StageStatus {
	jobs := make([]api.ActiveJob, 0, len(s.ActiveJobs))
	for _, j := range s.ActiveJobs {
		jobs = append(jobs, activeJobToApi(j))
	}
	return api.StageStatus{
		Status:     ReleaseStatusToApi(*s.Status),
		ActiveJobs: jobs,
	}
}

func activeJobToApi(j store.JobRow) api.ActiveJob {
	return api.ActiveJob{
		Id:        j.ID,
		Kind:      j.Kind,
		State:     string(j.State),
		Attempt:   j.Attempt,
		CreatedAt: j.CreatedAt,
	}
}

func StatisticsToApi(stats model.PublishingStats) api.PublishingStatistics {
	byStage := make(map[string]int64, len(stats.ByOverallStage))
	for stage, n := range stats.ByOverallStage {
		byStage[string(stage)] = n
	}
	return api.PublishingStatistics{Total: stats.Total, ByOverallStage: byStage}
}

func ReleaseVersionToApi(rv *model.ReleaseVersion) api.ReleaseVersion {
	files := make([]api.ReleaseFile, 0, len(rv.Files))
	for _, f := range rv.Files {
		id := f.ID
		files = append(files, api.ReleaseFile{
			Id:          &id,
			Name:        f.Name,
			Path:        f.Path,
			Type:        string(f.Type),
			ContentType: f.ContentType,
			Size:        f.Size,
			PublicPath:  f.PublicPath,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	dataSets := make([]api.DataSet, 0, len(rv.DataSets))
	for _, ds := range rv.DataSets {
		dataSets = append(dataSets, dataSetToApi(ds))
	}
	sort.Slice(dataSets, func(i, j int) bool { return dataSets[i].Title < dataSets[j].Title })

	return api.ReleaseVersion{
		Id:                rv.ID,
		ReleaseId:         rv.ReleaseID,
		PublicationSlug:   rv.PublicationSlug,
		Slug:              rv.Slug,
		Title:             rv.Title,
		Summary:           rv.Summary,
		ApprovalStatus:    string(rv.ApprovalStatus),
		PublishScheduled:  rv.PublishScheduled,
		Published:         rv.Published,
		NotifySubscribers: rv.NotifySubscribers,
		Files:             files,
		DataSets:          dataSets,
	}
}

func dataSetToApi(ds model.DataSet) api.DataSet {
	id := ds.ID
	out := api.DataSet{
		Id:         &id,
		Title:      ds.Title,
		SourcePath: ds.SourcePath,
		Status:     string(ds.Status),
		Error:      ds.Error,
		Published:  ds.Published,
	}
	if ds.Indicators != nil {
		out.Indicators = ds.Indicators.Data
	}
	if ds.Labels != nil {
		out.Labels = ds.Labels.Data
	}
	return out
}
