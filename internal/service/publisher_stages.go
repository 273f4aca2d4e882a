package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/statspub/publisher/internal/events"
	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/publishing"
	"github.com/statspub/publisher/internal/storage"
	"github.com/statspub/publisher/internal/store"
	"github.com/statspub/publisher/internal/store/model"
	"github.com/statspub/publisher/pkg/metrics"
)

// PublishReleaseFiles copies the release files from the private bucket to
// their public location.
func (p *Publisher) PublishReleaseFiles(ctx context.Context, args jobs.PublishReleaseFilesArgs) error {
	key := args.StatusKey.Key()
	status, ok, err := p.start(ctx, key, publishing.StageFiles, string(publishing.FilesStarted))
	if err != nil || !ok {
		return err
	}

	rv, err := p.store.ReleaseVersion().Get(ctx, status.ReleaseVersionID)
	if err != nil {
		return err
	}

	for _, f := range rv.Files {
		dst := PublicFilePath(rv.PublicationSlug, rv.Slug, f.Name)
		if err := p.blobs.Copy(ctx, p.cfg.PrivateBucket, f.Path, p.cfg.PublicBucket, dst); err != nil {
			return fmt.Errorf("copying file %s: %w", f.Name, err)
		}
		f.PublicPath = &dst
		if err := p.store.ReleaseVersion().UpdateFile(ctx, f); err != nil {
			return err
		}
	}

	return p.complete(ctx, key, publishing.StageFiles, string(publishing.FilesComplete),
		fmt.Sprintf("Published %d files", len(rv.Files)))
}

// PublishReleaseData converts each data set source into a Parquet file and
// its metadata dictionary. The data sets stay staged until the release goes
// live.
func (p *Publisher) PublishReleaseData(ctx context.Context, args jobs.PublishReleaseDataArgs) error {
	key := args.StatusKey.Key()
	status, ok, err := p.start(ctx, key, publishing.StageData, string(publishing.DataStarted))
	if err != nil || !ok {
		return err
	}

	dataSets, err := p.store.DataSet().ListByReleaseVersion(ctx, status.ReleaseVersionID)
	if err != nil {
		return err
	}

	for _, ds := range dataSets {
		if err := p.ingest(ctx, ds); err != nil {
			msg := err.Error()
			ds.Status = model.DataSetStatusFailed
			ds.Error = &msg
			if _, uerr := p.store.DataSet().Update(ctx, ds); uerr != nil {
				p.logger.WithContext(ctx).Operation("publish_release_data").
					WithUUID("data_set_id", ds.ID).
					Build().Error(uerr).Log()
			}
			return fmt.Errorf("processing data set %s: %w", ds.ID, err)
		}
	}

	return p.complete(ctx, key, publishing.StageData, string(publishing.DataComplete),
		fmt.Sprintf("Processed %d data sets", len(dataSets)))
}

func (p *Publisher) ingest(ctx context.Context, ds model.DataSet) error {
	dir := filepath.Join(p.cfg.DataSetsFolder, ds.ID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	sourcePath := filepath.Join(dir, dataSetSourceName)
	f, err := os.Create(sourcePath)
	if err != nil {
		return err
	}
	err = p.blobs.Get(ctx, p.cfg.PrivateBucket, ds.SourcePath, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloading source %s: %w", ds.SourcePath, err)
	}

	parquetPath := filepath.Join(dir, dataSetParquetName)
	meta, err := p.ingester.Ingest(ctx, sourcePath, parquetPath, ds.IngestOptions())
	if err != nil {
		return err
	}

	ds.Status = model.DataSetStatusStaged
	ds.Meta = model.MakeJSONField(*meta)
	ds.ParquetPath = &parquetPath
	ds.Error = nil
	_, err = p.store.DataSet().Update(ctx, ds)
	return err
}

// GenerateReleaseContent renders the content of an immediate release.
func (p *Publisher) GenerateReleaseContent(ctx context.Context, args jobs.GenerateReleaseContentArgs) error {
	return p.writeContent(ctx, args.StatusKey.Key())
}

// StageReleaseContent renders the content of a scheduled release ahead of
// its publish time.
func (p *Publisher) StageReleaseContent(ctx context.Context, args jobs.StageReleaseContentArgs) error {
	return p.writeContent(ctx, args.StatusKey.Key())
}

func (p *Publisher) writeContent(ctx context.Context, key model.ReleasePublishingKey) error {
	status, ok, err := p.start(ctx, key, publishing.StageContent, string(publishing.ContentStarted))
	if err != nil || !ok {
		return err
	}

	rv, err := p.store.ReleaseVersion().Get(ctx, status.ReleaseVersionID)
	if err != nil {
		return err
	}

	data, err := p.content.Build(rv, p.publishTime(status))
	if err != nil {
		return err
	}

	dst := StagingContentPrefix(status.PublicationSlug, status.ReleaseSlug) + contentFileName
	if err := p.blobs.Put(ctx, p.cfg.PublicBucket, dst, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}

	return p.complete(ctx, key, publishing.StageContent, string(publishing.ContentComplete), "Content staged")
}

// PublishReleaseContent promotes staged content to live, marks the release
// version and its data sets published and emits the published event.
func (p *Publisher) PublishReleaseContent(ctx context.Context, args jobs.PublishReleaseContentArgs) error {
	key := args.StatusKey.Key()
	status, ok, err := p.start(ctx, key, publishing.StagePublishing, string(publishing.PublishingStarted))
	if err != nil || !ok {
		return err
	}

	staging := StagingContentPrefix(status.PublicationSlug, status.ReleaseSlug)
	live := LiveContentPrefix(status.PublicationSlug, status.ReleaseSlug)
	copied, err := storage.CopyPrefix(ctx, p.blobs, p.cfg.PublicBucket, staging, live)
	if err != nil {
		return fmt.Errorf("promoting content: %w", err)
	}
	if copied == 0 {
		return fmt.Errorf("no staged content under %s", staging)
	}
	if err := storage.DeletePrefix(ctx, p.blobs, p.cfg.PublicBucket, staging); err != nil {
		return fmt.Errorf("clearing staged content: %w", err)
	}

	published := p.publishTime(status)
	var rv *model.ReleaseVersion
	err = store.WithinTransaction(ctx, p.store, func(ctx context.Context) error {
		if err := p.store.ReleaseVersion().MarkPublished(ctx, status.ReleaseVersionID, published); err != nil {
			return err
		}
		if err := p.store.DataSet().Publish(ctx, status.ReleaseVersionID, published); err != nil {
			return err
		}
		var err error
		rv, err = p.store.ReleaseVersion().Get(ctx, status.ReleaseVersionID)
		return err
	})
	if err != nil {
		return err
	}

	if err := p.complete(ctx, key, publishing.StagePublishing, string(publishing.PublishingComplete), "Release published"); err != nil {
		return err
	}

	metrics.IncreaseReleasesPublishedMetric()
	p.events.Published(ctx, events.ReleasePublishedEvent{
		ReleaseVersionID:  rv.ID,
		ReleaseID:         rv.ReleaseID,
		PublicationSlug:   rv.PublicationSlug,
		ReleaseSlug:       rv.Slug,
		Published:         published,
		NotifySubscribers: rv.NotifySubscribers,
	})
	return nil
}

// publishTime is the scheduled time of an attempt, or now for immediate ones.
func (p *Publisher) publishTime(status *model.ReleasePublishingStatus) time.Time {
	if !status.Immediate && status.Publish != nil {
		return *status.Publish
	}
	return p.now()
}
