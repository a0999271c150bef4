package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/scheduler"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduled pipeline runs",
	Long: `Run the daily pipeline on a cron schedule ($SCHEDULE_CRON,
default "0 30 22 * * MON-FRI", seconds field first).

Subcommands:
  start  - start the scheduler daemon
  run    - run a registered job once, with retries

Example:
  go run ./cmd/quant scheduler start --serve
  go run ./cmd/quant scheduler run daily_pipeline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		RunE:  runSchedulerStart,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerJob,
	}

	schedulerServe bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd, schedulerRunCmd)

	schedulerStartCmd.Flags().BoolVar(&schedulerServe, "serve", false, "also start the ops server in this process")
}

func (a *app) scheduler(cmd *cobra.Command) (*scheduler.Scheduler, error) {
	orchestrator, err := a.orchestrator(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	calendar := a.calendar(cmd.Context(), a.pipeline.Regime.Regions[0])
	sched := scheduler.New(a.log)
	if err := sched.AddJob(jobs.NewPipelineJob(orchestrator, calendar, a.cfg.ScheduleCron, a.log)); err != nil {
		return nil, fmt.Errorf("register pipeline job: %w", err)
	}
	return sched, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.scheduler(cmd)
	if err != nil {
		return err
	}
	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.JobNames() {
		if next, ok := sched.NextRun(name); ok {
			fmt.Printf("  - %s (next: %s)\n", name, next.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("  - %s\n", name)
		}
	}

	if schedulerServe {
		server := a.startOpsServer()
		defer a.shutdownOpsServer(server)
	}

	fmt.Println("\nPress Ctrl+C to stop")
	waitForSignal()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func runSchedulerJob(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.scheduler(cmd)
	if err != nil {
		return err
	}

	result, err := sched.RunNow(args[0])
	if err != nil {
		return err
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempts: %v", args[0], result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", args[0])
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s (%d attempts)", args[0], result.Duration, result.Attempts))
	return nil
}
