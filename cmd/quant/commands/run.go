package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/brain"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full daily pipeline",
	Long: `Run regime → universe → portfolio → risk for every configured region
(or the regions given with --region). The first failing stage aborts the run.

Example:
  go run ./cmd/quant run
  go run ./cmd/quant run --date 2024-03-15 --region US,EU`,
	RunE: runPipeline,
}

var (
	runDate    string
	runRegions []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDate, "date", "", "as-of date (YYYY-MM-DD, default: latest trading day)")
	runCmd.Flags().StringSliceVar(&runRegions, "region", nil, "restrict to regions (comma separated)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	regions := make([]string, 0, len(runRegions))
	for _, code := range runRegions {
		r, err := a.region(code)
		if err != nil {
			return err
		}
		regions = append(regions, r.Region)
	}

	first := a.pipeline.Regime.Regions[0]
	if len(regions) > 0 {
		first, _ = a.region(regions[0])
	}
	asOf, err := a.asOfDate(ctx, first, runDate)
	if err != nil {
		return err
	}

	orchestrator, err := a.orchestrator(ctx)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	runConfig := brain.RunConfig{
		Date:    asOf,
		RunID:   uuid.NewString(),
		Regions: regions,
	}
	fmt.Printf("🚀 Starting pipeline run %s for %s\n", runConfig.RunID, asOf.Format(dateLayout))

	result, err := orchestrator.Run(ctx, runConfig)
	hits, misses := a.prices.Stats()
	a.log.WithFields(map[string]interface{}{
		"hits":   hits,
		"misses": misses,
	}).Debug("Price cache usage")
	if result != nil {
		printRunResult(result)
	}
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	return nil
}

func printRunResult(result *brain.RunResult) {
	PrintHeader("Pipeline run " + result.RunID)
	PrintKeyValue("Date", result.Date.Format(dateLayout), 12)
	PrintKeyValue("Config hash", result.ConfigHash, 12)
	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 12)
	PrintKeyValue("Stages", strings.Join(result.CompletedStages, ", "), 12)

	if len(result.Regimes) > 0 {
		fmt.Println()
		widths := []int{8, 10, 10}
		PrintTableHeader([]string{"Region", "Regime", "Confidence"}, widths)
		for _, region := range sortedKeys(result.Regimes) {
			s := result.Regimes[region]
			PrintTableRow([]string{region, string(s.RegimeLabel), fmt.Sprintf("%.4f", s.Confidence)}, widths)
		}
	}

	if len(result.Universes) > 0 {
		fmt.Println()
		widths := []int{16, 8, 8, 8}
		PrintTableHeader([]string{"Universe", "Total", "Included", "Core"}, widths)
		for _, region := range sortedKeys(result.Universes) {
			u := result.Universes[region]
			PrintTableRow([]string{
				u.UniverseID,
				fmt.Sprintf("%d", u.Total),
				fmt.Sprintf("%d", u.Included),
				fmt.Sprintf("%d", u.Core),
			}, widths)
		}
	}

	if len(result.Portfolios) > 0 {
		fmt.Println()
		widths := []int{20, 8, 12}
		PrintTableHeader([]string{"Portfolio", "Names", "Exp. vol"}, widths)
		for _, region := range sortedKeys(result.Portfolios) {
			p := result.Portfolios[region]
			PrintTableRow([]string{
				p.PortfolioID,
				fmt.Sprintf("%d", p.Count()),
				fmt.Sprintf("%.6f", p.ExpectedVolatility),
			}, widths)
		}
	}

	fmt.Println()
	if result.Success {
		PrintSuccess("Pipeline completed")
	} else if result.Error != nil {
		PrintError(result.Error.Error())
	}
}
