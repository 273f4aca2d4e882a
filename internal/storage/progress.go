package storage

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// progressWriter wraps an io.Writer and periodically logs download progress.
type progressWriter struct {
	downloadedBytes int64
	total           int64
	key             string
	w               io.Writer
}

func newProgressWriter(ctx context.Context, w io.Writer, key string, totalBytesToDownload int64) *progressWriter {
	pw := &progressWriter{w: w, key: key, total: totalBytesToDownload}
	go pw.start(ctx)

	return pw
}

func (p *progressWriter) start(ctx context.Context) {
	oldValue := int64(0)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			downloaded := atomic.LoadInt64(&p.downloadedBytes)
			rate := fmt.Sprintf("%.2f MB/s", (float32(downloaded)-float32(oldValue))/(1024*1024*10))
			if p.total == 0 {
				zap.S().Named("storage").Debugw("downloading", "key", p.key, "downloaded", fmt.Sprintf("%.2f Mb", float32(downloaded)/(1024*1024)), "rate", rate)
			} else {
				zap.S().Named("storage").Debugw("downloading", "key", p.key, "progress", fmt.Sprintf("%.2f%%", 100*(float32(downloaded)/float32(p.total))), "rate", rate)
			}
			oldValue = downloaded
		}
	}
}

func (p *progressWriter) Write(b []byte) (n int, err error) {
	n, err = p.w.Write(b)
	if err == nil {
		atomic.AddInt64(&p.downloadedBytes, int64(n))
	}
	return
}
