package strategyconfig

import (
	"fmt"
	"strings"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// ValidationError is a rejected configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks cross-field constraints that struct tags cannot express
func Validate(cfg *Config) error {
	// === Regime ===
	seen := map[string]bool{}
	for i, r := range cfg.Regime.Regions {
		key := strings.ToUpper(r.Region)
		if seen[key] {
			return ValidationError{fmt.Sprintf("regime.regions[%d].region", i), "duplicate region " + r.Region}
		}
		seen[key] = true
	}

	if cfg.Regime.TargetLabel != "" {
		if _, ok := contracts.ParseRegimeLabel(cfg.Regime.TargetLabel); !ok {
			return ValidationError{"regime.target_label", "unknown regime label " + cfg.Regime.TargetLabel}
		}
	}

	labels := map[contracts.RegimeLabel]bool{}
	for i, p := range cfg.Regime.Prototypes {
		field := fmt.Sprintf("regime.prototypes[%d]", i)
		if _, ok := contracts.ParseRegimeLabel(string(p.Label)); !ok {
			return ValidationError{field + ".label", "unknown regime label " + string(p.Label)}
		}
		if labels[p.Label] {
			return ValidationError{field + ".label", "duplicate prototype " + string(p.Label)}
		}
		labels[p.Label] = true
		if len(p.Center) != cfg.Regime.EmbeddingDim {
			return ValidationError{field + ".center", fmt.Sprintf("has %d values, embedding_dim is %d", len(p.Center), cfg.Regime.EmbeddingDim)}
		}
	}

	// === Universe ===
	if err := cfg.Universe.Validate(); err != nil {
		return ValidationError{"universe", err.Error()}
	}

	// === Lambda ===
	if cfg.Universe.LambdaScoreWeight != 0 && cfg.Lambda.Path == "" {
		return ValidationError{"lambda.path", "required when universe.lambda_score_weight is set"}
	}

	return nil
}
