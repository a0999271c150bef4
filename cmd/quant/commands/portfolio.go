package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/strategyconfig"
)

// portfolioCmd represents the portfolio command
var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Target portfolio construction and risk",
	Long: `Build the long-only target portfolio of a region from its stored universe,
or print a stored target with its risk report.

Example:
  go run ./cmd/quant portfolio build --region US --date 2024-03-15
  go run ./cmd/quant portfolio report --region US`,
}

var (
	portfolioBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build and store target portfolio and risk report",
		RunE:  runPortfolioBuild,
	}

	portfolioReportCmd = &cobra.Command{
		Use:   "report",
		Short: "Show a stored target portfolio and risk report",
		RunE:  runPortfolioReport,
	}

	// Flags
	portfolioRegion string
	portfolioDate   string
	portfolioDryRun bool
)

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioBuildCmd, portfolioReportCmd)

	portfolioCmd.PersistentFlags().StringVar(&portfolioRegion, "region", "US", "region code")
	portfolioCmd.PersistentFlags().StringVar(&portfolioDate, "date", "", "as-of date (YYYY-MM-DD)")
	portfolioBuildCmd.Flags().BoolVar(&portfolioDryRun, "dry-run", false, "do not store the results")
}

func runPortfolioBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(portfolioRegion)
	if err != nil {
		return err
	}
	asOf, err := a.asOfDate(ctx, r, portfolioDate)
	if err != nil {
		return err
	}

	model, err := a.portfolioModel(r)
	if err != nil {
		return err
	}

	portfolioID := strategyconfig.PortfolioID(r.Region)
	target, err := model.BuildTargetPortfolio(ctx, portfolioID, asOf)
	if err != nil {
		return fmt.Errorf("build target portfolio: %w", err)
	}
	report, err := model.BuildRiskReport(ctx, portfolioID, asOf, target)
	if err != nil {
		return fmt.Errorf("build risk report: %w", err)
	}

	if !portfolioDryRun {
		if err := a.portfolioRepo.SavePortfolio(ctx, target, report); err != nil {
			return fmt.Errorf("save portfolio: %w", err)
		}
	}

	printTarget(target)
	printRiskReport(report)
	if portfolioDryRun {
		PrintWarning("Dry run: portfolio was not stored")
	} else {
		PrintSuccess("Target portfolio and risk report stored")
	}
	return nil
}

func runPortfolioReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(portfolioRegion)
	if err != nil {
		return err
	}
	portfolioID := strategyconfig.PortfolioID(r.Region)

	var target *contracts.TargetPortfolio
	if portfolioDate != "" {
		asOf, perr := time.Parse(dateLayout, portfolioDate)
		if perr != nil {
			return fmt.Errorf("invalid --date: %w", perr)
		}
		target, err = a.portfolioRepo.GetTargetPortfolio(ctx, portfolioID, asOf)
	} else {
		target, err = a.portfolioRepo.GetLatestTargetPortfolio(ctx, portfolioID)
	}
	if err != nil {
		return fmt.Errorf("load target portfolio: %w", err)
	}
	if target == nil {
		PrintWarning("No target portfolio stored for " + portfolioID)
		return nil
	}

	report, err := a.portfolioRepo.GetRiskReport(ctx, portfolioID, target.AsOfDate)
	if err != nil {
		return fmt.Errorf("load risk report: %w", err)
	}

	printTarget(target)
	if report == nil {
		PrintWarning("No risk report stored for this target")
		return nil
	}
	printRiskReport(report)
	return nil
}

func printTarget(target *contracts.TargetPortfolio) {
	PrintHeader(fmt.Sprintf("Target %s @ %s", target.PortfolioID, target.AsOfDate.Format(dateLayout)))
	PrintKeyValue("Names", fmt.Sprintf("%d", target.Count()), 12)
	PrintKeyValue("Total weight", fmt.Sprintf("%.6f", target.TotalWeight()), 12)
	PrintKeyValue("Expected vol", fmt.Sprintf("%.6f", target.ExpectedVolatility), 12)

	ids := sortedKeys(target.Weights)
	sort.SliceStable(ids, func(i, j int) bool {
		return target.Weights[ids[i]] > target.Weights[ids[j]]
	})
	fmt.Println()
	widths := []int{16, 10}
	PrintTableHeader([]string{"Instrument", "Weight"}, widths)
	for _, id := range ids {
		PrintTableRow([]string{id, fmt.Sprintf("%.4f", target.Weights[id])}, widths)
	}

	PrintFloatMap("Risk metrics", target.RiskMetrics)
	PrintFloatMap("Factor exposures", target.FactorExposures)

	if len(target.ConstraintsStatus) > 0 {
		fmt.Println("\nConstraints")
		for _, k := range sortedKeys(target.ConstraintsStatus) {
			PrintKeyValue(k, fmt.Sprintf("%v", target.ConstraintsStatus[k]), 34)
		}
	}
}

func printRiskReport(report *contracts.RiskReport) {
	PrintHeader("Risk report " + report.PortfolioID)
	PrintFloatMap("Exposures", report.Exposures)
	PrintFloatMap("Risk metrics", report.RiskMetrics)
	PrintFloatMap("Scenario P&L", report.ScenarioPnL)
}
