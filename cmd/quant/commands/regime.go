package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// regimeCmd represents the regime command
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "Regime classification and forecasting",
	Long: `Classify, inspect and forecast market regimes per region.

Subcommands:
  classify  - classify (and store) the regime at a date
  forecast  - project the latest regime forward through the transition chain
  history   - list stored regimes in a date range
  matrix    - print the empirical transition matrix

Example:
  go run ./cmd/quant regime classify --region US --date 2024-03-15
  go run ./cmd/quant regime forecast --region US --horizon 5`,
}

var (
	regimeClassifyCmd = &cobra.Command{
		Use:   "classify",
		Short: "Classify the regime at a date",
		RunE:  runRegimeClassify,
	}

	regimeForecastCmd = &cobra.Command{
		Use:   "forecast",
		Short: "Forecast regime change risk",
		RunE:  runRegimeForecast,
	}

	regimeHistoryCmd = &cobra.Command{
		Use:   "history",
		Short: "List stored regimes",
		RunE:  runRegimeHistory,
	}

	regimeMatrixCmd = &cobra.Command{
		Use:   "matrix",
		Short: "Print the regime transition matrix",
		RunE:  runRegimeMatrix,
	}

	// Flags
	regimeRegion  string
	regimeDate    string
	regimeHorizon int
	regimeFrom    string
	regimeTo      string
)

func init() {
	rootCmd.AddCommand(regimeCmd)
	regimeCmd.AddCommand(regimeClassifyCmd, regimeForecastCmd, regimeHistoryCmd, regimeMatrixCmd)

	regimeCmd.PersistentFlags().StringVar(&regimeRegion, "region", "US", "region code")
	regimeClassifyCmd.Flags().StringVar(&regimeDate, "date", "", "as-of date (YYYY-MM-DD, default: latest trading day)")
	regimeForecastCmd.Flags().IntVar(&regimeHorizon, "horizon", 0, "horizon in steps (default: regime.horizon_steps)")
	regimeHistoryCmd.Flags().StringVar(&regimeFrom, "from", "", "start date (YYYY-MM-DD, default: 90 days before --to)")
	regimeHistoryCmd.Flags().StringVar(&regimeTo, "to", "", "end date (YYYY-MM-DD, default: today)")
}

func runRegimeClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(regimeRegion)
	if err != nil {
		return err
	}
	asOf, err := a.asOfDate(ctx, r, regimeDate)
	if err != nil {
		return err
	}

	engine, err := a.regimeEngine()
	if err != nil {
		return err
	}
	state, err := engine.GetRegime(ctx, asOf, r.Region)
	if err != nil {
		return fmt.Errorf("classify regime: %w", err)
	}

	PrintHeader(fmt.Sprintf("Regime %s @ %s", state.Region, state.AsOfDate.Format(dateLayout)))
	PrintKeyValue("Label", string(state.RegimeLabel), 10)
	PrintKeyValue("Confidence", fmt.Sprintf("%.4f", state.Confidence), 10)
	PrintKeyValue("Regime ID", state.RegimeID, 10)
	return nil
}

func runRegimeForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(regimeRegion)
	if err != nil {
		return err
	}
	horizon := regimeHorizon
	if horizon == 0 {
		horizon = a.pipeline.Regime.HorizonSteps
	}

	risk, err := a.regimeForecaster().Forecast(ctx, r.Region, horizon)
	if err != nil {
		return fmt.Errorf("forecast regime: %w", err)
	}
	if risk == nil {
		PrintWarning("No regime stored for " + r.Region + "; run 'regime classify' first")
		return nil
	}

	PrintHeader(fmt.Sprintf("Regime change risk %s (h=%d)", risk.Region, risk.HorizonSteps))
	PrintKeyValue("Current", string(risk.CurrentRegime), 14)
	PrintKeyValue("As of", risk.AsOfDate.Format(dateLayout), 14)
	PrintKeyValue("P(change)", fmt.Sprintf("%.4f", risk.PChangeAny), 14)
	PrintKeyValue("P(stressed)", fmt.Sprintf("%.4f", risk.PToStressed), 14)
	PrintKeyValue("P(carry)", fmt.Sprintf("%.4f", risk.PToCarry), 14)
	PrintKeyValue("P("+string(risk.TargetLabel)+")", fmt.Sprintf("%.4f", risk.PToTargetLabel), 14)
	PrintKeyValue("Risk score", fmt.Sprintf("%.4f", risk.RiskScore), 14)

	dist := make(map[string]float64, len(risk.Distribution))
	for label, p := range risk.Distribution {
		dist[string(label)] = p
	}
	PrintFloatMap("Distribution", dist)
	return nil
}

func runRegimeHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(regimeRegion)
	if err != nil {
		return err
	}

	to := contracts.DateOnly(time.Now().UTC())
	if regimeTo != "" {
		if to, err = time.Parse(dateLayout, regimeTo); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}
	from := to.AddDate(0, 0, -90)
	if regimeFrom != "" {
		if from, err = time.Parse(dateLayout, regimeFrom); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}

	states, err := a.regimeRepo.GetHistory(ctx, r.Region, from, to)
	if err != nil {
		return fmt.Errorf("load regime history: %w", err)
	}

	PrintHeader(fmt.Sprintf("Regime history %s %s ~ %s", r.Region, from.Format(dateLayout), to.Format(dateLayout)))
	widths := []int{10, 10, 10}
	PrintTableHeader([]string{"Date", "Label", "Confidence"}, widths)
	for _, s := range states {
		PrintTableRow([]string{
			s.AsOfDate.Format(dateLayout),
			string(s.RegimeLabel),
			fmt.Sprintf("%.4f", s.Confidence),
		}, widths)
	}
	fmt.Printf("\n%d states\n", len(states))
	return nil
}

func runRegimeMatrix(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(regimeRegion)
	if err != nil {
		return err
	}

	matrix, err := a.regimeRepo.GetTransitionMatrix(ctx, r.Region)
	if err != nil {
		return fmt.Errorf("load transition matrix: %w", err)
	}

	PrintHeader("Regime transition matrix " + r.Region)
	columns := []string{"from \\ to"}
	widths := []int{10}
	for _, l := range contracts.RegimeLabels {
		columns = append(columns, string(l))
		widths = append(widths, 9)
	}
	PrintTableHeader(columns, widths)
	for _, from := range contracts.RegimeLabels {
		row := []string{string(from)}
		for _, to := range contracts.RegimeLabels {
			row = append(row, fmt.Sprintf("%.4f", matrix[string(from)][string(to)]))
		}
		PrintTableRow(row, widths)
	}
	if len(matrix) == 0 {
		PrintWarning("No transitions recorded for " + strings.ToUpper(r.Region))
	}
	return nil
}
