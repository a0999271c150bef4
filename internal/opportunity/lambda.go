// Package opportunity serves cluster-level opportunity (lambda) scores.
package opportunity

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

const DefaultScoreColumn = "lambda_hat"

type clusterKey struct {
	date     string
	marketID string
	sector   string
	class    string
}

// LambdaProvider looks up lambda predictions by
// (as_of_date, market_id, sector, soft_target_class).
type LambdaProvider struct {
	table        map[clusterKey]float64
	experimentID string
	scoreColumn  string
}

// LoadLambdaProvider reads a predictions CSV from path
func LoadLambdaProvider(path, experimentID, scoreColumn string) (*LambdaProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lambda predictions: %w", err)
	}
	defer f.Close()

	return NewLambdaProvider(f, experimentID, scoreColumn)
}

// NewLambdaProvider parses predictions. When experimentID is set only rows of
// that experiment are kept. Later rows override earlier ones for the same key.
func NewLambdaProvider(r io.Reader, experimentID, scoreColumn string) (*LambdaProvider, error) {
	if scoreColumn == "" {
		scoreColumn = DefaultScoreColumn
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}

	if _, ok := col["as_of_date"]; !ok {
		return nil, errors.New("lambda predictions must contain an as_of_date column")
	}
	var missing []string
	for _, name := range []string{"market_id", "sector", "soft_target_class"} {
		if _, ok := col[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("lambda predictions missing required columns: %v", missing)
	}
	if _, ok := col["experiment_id"]; experimentID != "" && !ok {
		return nil, errors.New("lambda predictions need an experiment_id column when an experiment is selected")
	}
	if _, ok := col[scoreColumn]; !ok {
		cols := make([]string, 0, len(col))
		for name := range col {
			cols = append(cols, name)
		}
		sort.Strings(cols)
		return nil, fmt.Errorf("score column %q not found in %v", scoreColumn, cols)
	}

	table := make(map[clusterKey]float64)
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if experimentID != "" && rec[col["experiment_id"]] != experimentID {
			continue
		}

		raw := strings.TrimSpace(rec[col[scoreColumn]])
		if raw == "" {
			continue
		}
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse %s: %w", line, scoreColumn, err)
		}
		// nan and inf parse cleanly; treat them like a blank score
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}

		d, err := parseDate(rec[col["as_of_date"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		table[clusterKey{
			date:     d,
			marketID: rec[col["market_id"]],
			sector:   rec[col["sector"]],
			class:    rec[col["soft_target_class"]],
		}] = score
	}

	if experimentID != "" && len(table) == 0 {
		return nil, fmt.Errorf("no rows found for experiment_id=%q", experimentID)
	}

	return &LambdaProvider{table: table, experimentID: experimentID, scoreColumn: scoreColumn}, nil
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid as_of_date %q", s)
}

// GetClusterScore returns the score for the cluster, nil when absent
func (p *LambdaProvider) GetClusterScore(_ context.Context, asOf time.Time, marketID, sector string, class contracts.SoftTargetClass) (*float64, error) {
	v, ok := p.table[clusterKey{
		date:     asOf.Format("2006-01-02"),
		marketID: marketID,
		sector:   sector,
		class:    string(class),
	}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ExperimentInfo reports the experiment filter and score column in use
func (p *LambdaProvider) ExperimentInfo() (string, string) {
	return p.experimentID, p.scoreColumn
}

// Len returns the number of clusters loaded
func (p *LambdaProvider) Len() int {
	return len(p.table)
}
