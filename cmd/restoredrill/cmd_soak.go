package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/restoredrill/internal/config"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/logger"
	"github.com/Ning0612/restoredrill/internal/scheduler"
)

var (
	argInterval      time.Duration
	argRuns          int
	argKeepOnFailure bool
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "repeat drills with fresh seeds",
	Long: `Runs complete drills one after another, each with a new time-based seed
and without the version cache, pausing --interval between drills. Stops at
the first mismatch unless --keep-going is set, after --runs drills, on the
first drill that cannot complete, or on interrupt. Every drill is recorded
in the run history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd, false)
		if err != nil {
			return err
		}
		defer logger.Shutdown()

		cfg.Run.Seed = 0
		cfg.Run.Cache = false

		s, err := scheduler.NewIntervalScheduler(scheduler.Config{
			Interval:      argInterval,
			MaxRuns:       argRuns,
			StopOnFailure: !argKeepOnFailure,
		}, drillRunner(cmd, cfg))
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		if err := s.Start(ctx); err != nil {
			return err
		}
		<-s.Done()

		status := s.Status()
		fmt.Fprintf(cmd.OutOrStdout(), "soak finished: %d drills, %d passed, %d failed, %d errored\n",
			status.TotalRuns, status.PassedRuns, status.FailedRuns, status.ErroredRuns)
		if status.ErroredRuns > 0 {
			return fmt.Errorf("drill %d aborted: %s", status.TotalRuns, status.LastError)
		}
		if status.FailedRuns > 0 {
			return fmt.Errorf("%w: %d drills failed", domain.ErrMismatch, status.FailedRuns)
		}
		return nil
	},
}

func init() {
	soakCmd.Flags().DurationVar(&argInterval, "interval", 0, "pause between drills")
	soakCmd.Flags().IntVar(&argRuns, "runs", 0, "stop after this many drills (0 = until interrupted)")
	soakCmd.Flags().BoolVar(&argKeepOnFailure, "keep-going", false, "continue after a failed drill")
	soakCmd.Flags().IntVarP(&argVersions, "versions", "n", 0, "number of versions per drill (overrides run.versions)")
	soakCmd.Flags().BoolVar(&argNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(soakCmd)
}

// drillRunner runs one full drill per iteration, each with its own harness
func drillRunner(cmd *cobra.Command, cfg *config.Config) scheduler.Runner {
	return scheduler.RunnerFunc(func(ctx context.Context, iteration int) error {
		h, err := newHarness(cfg, !argNoProgress)
		if err != nil {
			return err
		}
		defer h.Close()

		result, err := h.svc.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "drill %d: ", iteration+1)
		printResult(cmd.OutOrStdout(), result)
		if result.Failure != nil {
			return result.Failure
		}
		return nil
	})
}
