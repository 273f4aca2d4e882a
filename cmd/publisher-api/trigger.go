package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/statspub/publisher/internal/jobs"
	"github.com/statspub/publisher/internal/store"
)

const releaseVersionFlag = "release-version"

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue a publishing message without going through the api",
}

var triggerStageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Run the staging timer now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := releaseVersionIDs(cmd.Flags())
		if err != nil {
			return err
		}
		return enqueue(cmd.Context(), jobs.StageScheduledReleasesArgs{ReleaseVersionIDs: ids})
	},
}

var triggerPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run the publishing timer now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := releaseVersionIDs(cmd.Flags())
		if err != nil {
			return err
		}
		return enqueue(cmd.Context(), jobs.PublishScheduledReleasesArgs{ReleaseVersionIDs: ids})
	},
}

var triggerNotifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Open a publishing attempt for a release version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := releaseVersionIDs(cmd.Flags())
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return fmt.Errorf("exactly one --%s is required", releaseVersionFlag)
		}
		immediate, err := cmd.Flags().GetBool("immediate")
		if err != nil {
			return err
		}
		return enqueue(cmd.Context(), jobs.NotifyChangeArgs{ReleaseVersionID: ids[0], Immediate: immediate})
	},
}

func init() {
	for _, c := range []*cobra.Command{triggerStageCmd, triggerPublishCmd, triggerNotifyCmd} {
		c.Flags().StringSlice(releaseVersionFlag, nil, "Release version id, repeat or comma separate for several")
		triggerCmd.AddCommand(c)
	}
	triggerNotifyCmd.Flags().Bool("immediate", false, "Publish as soon as the stages complete")
}

func releaseVersionIDs(flags *pflag.FlagSet) ([]uuid.UUID, error) {
	raw, err := flags.GetStringSlice(releaseVersionFlag)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid release version id %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func enqueue(ctx context.Context, args river.JobArgs) error {
	cfg, teardown, err := setup()
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	defer teardown()

	pool, err := store.NewPgxPool(ctx, cfg, 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := jobs.NewInsertOnlyClient(pool)
	if err != nil {
		return err
	}

	if err := client.Enqueue(ctx, args); err != nil {
		return fmt.Errorf("queueing %s: %w", args.Kind(), err)
	}
	zap.S().Infow("message queued", "kind", args.Kind())
	return nil
}
