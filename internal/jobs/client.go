package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/statspub/publisher/internal/config"
)

// Queue accepts the messages that drive the pipeline.
type Queue interface {
	Enqueue(ctx context.Context, args ...river.JobArgs) error
}

type Client struct {
	*river.Client[pgx.Tx]
}

var _ Queue = (*Client)(nil)

// NewClient builds a client that works the publishing queues and runs the timers.
func NewClient(pool *pgxpool.Pool, handler StageHandler, cfg config.Publisher) (*Client, error) {
	periodic, err := PeriodicJobs(cfg.StageScheduledReleasesCron, cfg.PublishReleaseContentCron)
	if err != nil {
		return nil, err
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: cfg.MaxWorkers},
			TimerQueue:   {MaxWorkers: 1},
		},
		Workers:                     NewWorkers(handler, cfg.StageTimeout),
		PeriodicJobs:                periodic,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
		DiscardedJobRetentionPeriod: cfg.DiscardedJobRetentionPeriod,
		JobTimeout:                  cfg.StageTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient}, nil
}

// NewInsertOnlyClient builds a client that can enqueue messages but works none.
func NewInsertOnlyClient(pool *pgxpool.Pool) (*Client, error) {
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, err
	}
	return &Client{Client: riverClient}, nil
}

func (c *Client) Enqueue(ctx context.Context, args ...river.JobArgs) error {
	if len(args) == 0 {
		return nil
	}
	params := make([]river.InsertManyParams, 0, len(args))
	for _, a := range args {
		params = append(params, river.InsertManyParams{Args: a})
	}
	_, err := c.InsertMany(ctx, params)
	return err
}

// Shutdown stops fetching new jobs and waits for running ones up to timeout.
func (c *Client) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Stop(ctx)
}
