package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s1_universe"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/strategyconfig"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Universe construction",
	Long: `Build or inspect the core equity universe of a region.

Subcommands:
  build  - run hard filters, scoring, capacity caps and tiering
  show   - print a stored universe

Example:
  go run ./cmd/quant universe build --region US --date 2024-03-15
  go run ./cmd/quant universe show --region US --included-only`,
}

var (
	universeBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the universe at a date",
		RunE:  runUniverseBuild,
	}

	universeShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Show a stored universe",
		RunE:  runUniverseShow,
	}

	// Flags
	universeRegion       string
	universeDate         string
	universeDryRun       bool
	universeIncludedOnly bool
	universeLimit        int
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeBuildCmd, universeShowCmd)

	universeCmd.PersistentFlags().StringVar(&universeRegion, "region", "US", "region code")
	universeCmd.PersistentFlags().StringVar(&universeDate, "date", "", "as-of date (YYYY-MM-DD)")
	universeBuildCmd.Flags().BoolVar(&universeDryRun, "dry-run", false, "do not store the members")
	universeShowCmd.Flags().BoolVar(&universeIncludedOnly, "included-only", false, "hide excluded candidates")
	universeShowCmd.Flags().IntVar(&universeLimit, "limit", 50, "max rows to print (0 = all)")
}

func runUniverseBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(universeRegion)
	if err != nil {
		return err
	}
	asOf, err := a.asOfDate(ctx, r, universeDate)
	if err != nil {
		return err
	}

	engine, err := a.universeEngine(ctx, r)
	if err != nil {
		return err
	}

	universeID := strategyconfig.UniverseID(r.Region)
	start := time.Now()
	members, err := engine.BuildUniverse(ctx, asOf, universeID)
	if err != nil {
		return fmt.Errorf("build universe: %w", err)
	}

	if !universeDryRun {
		if err := a.universeRepo.SaveMembers(ctx, members); err != nil {
			return fmt.Errorf("save universe: %w", err)
		}
	}

	printUniverseSummary(universeID, asOf, members)
	printExclusions(members)
	if universeDryRun {
		PrintWarning("Dry run: members were not stored")
	} else {
		PrintSuccess(fmt.Sprintf("Universe stored in %.2fs", time.Since(start).Seconds()))
	}
	return nil
}

func runUniverseShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	r, err := a.region(universeRegion)
	if err != nil {
		return err
	}
	universeID := strategyconfig.UniverseID(r.Region)

	var asOf time.Time
	if universeDate != "" {
		if asOf, err = time.Parse(dateLayout, universeDate); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	} else {
		dates, err := a.universeRepo.ListUniverseDates(ctx, universeID, 1)
		if err != nil {
			return fmt.Errorf("list universe dates: %w", err)
		}
		if len(dates) == 0 {
			PrintWarning("No universe stored for " + universeID)
			return nil
		}
		asOf = dates[0]
	}

	members, err := a.universeRepo.GetUniverse(ctx, asOf, universeID, contracts.EntityTypeInstrument, universeIncludedOnly)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	printUniverseSummary(universeID, asOf, members)

	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Included != members[j].Included {
			return members[i].Included
		}
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].EntityID < members[j].EntityID
	})

	fmt.Println()
	widths := []int{16, 10, 10, 28}
	PrintTableHeader([]string{"Instrument", "Tier", "Score", "Exclusion"}, widths)
	for i, m := range members {
		if universeLimit > 0 && i >= universeLimit {
			fmt.Printf("... %d more\n", len(members)-universeLimit)
			break
		}
		PrintTableRow([]string{
			m.EntityID,
			string(m.Tier),
			fmt.Sprintf("%.4f", m.Score),
			s1_universe.ExclusionReason(m),
		}, widths)
	}
	return nil
}

func printUniverseSummary(universeID string, asOf time.Time, members []contracts.UniverseMember) {
	counts := contracts.CountByTier(members)
	PrintHeader(fmt.Sprintf("Universe %s @ %s", universeID, asOf.Format(dateLayout)))
	PrintKeyValue("Candidates", fmt.Sprintf("%d", len(members)), 10)
	PrintKeyValue("Included", fmt.Sprintf("%d", len(contracts.IncludedMembers(members))), 10)
	PrintKeyValue("Core", fmt.Sprintf("%d", counts[contracts.TierCore]), 10)
	PrintKeyValue("Satellite", fmt.Sprintf("%d", counts[contracts.TierSatellite]), 10)
	PrintKeyValue("Excluded", fmt.Sprintf("%d", counts[contracts.TierExcluded]), 10)
}

func printExclusions(members []contracts.UniverseMember) {
	reasons := make(map[string]int)
	for _, m := range members {
		if reason := s1_universe.ExclusionReason(m); reason != "" {
			reasons[reason]++
		}
	}
	if len(reasons) == 0 {
		return
	}
	fmt.Println("\nExclusions")
	for _, reason := range sortedKeys(reasons) {
		PrintKeyValue(reason, fmt.Sprintf("%d", reasons[reason]), 28)
	}
}
