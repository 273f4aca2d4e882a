package jobs

import (
	"fmt"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule reads a six field cron expression, seconds first.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// PeriodicJobs builds the two publishing timers.
func PeriodicJobs(stageCron, publishCron string) ([]*river.PeriodicJob, error) {
	stageSchedule, err := ParseSchedule(stageCron)
	if err != nil {
		return nil, err
	}
	publishSchedule, err := ParseSchedule(publishCron)
	if err != nil {
		return nil, err
	}

	return []*river.PeriodicJob{
		river.NewPeriodicJob(stageSchedule, func() (river.JobArgs, *river.InsertOpts) {
			return StageScheduledReleasesArgs{}, nil
		}, nil),
		river.NewPeriodicJob(publishSchedule, func() (river.JobArgs, *river.InsertOpts) {
			return PublishScheduledReleasesArgs{}, nil
		}, nil),
	}, nil
}
