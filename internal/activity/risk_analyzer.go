package activity

import (
	"context"
	"fmt"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/errors"
)

// lowSeverityUplift compensates for early reports understating small
// incidents: field severity below this bound gets a one-point uplift.
const lowSeverityUpliftBound = 5

// SeverityRiskAnalyzer computes a RiskAssessment from the reported event.
// Risk is computed, not copied: reported severity is adjusted by the
// low-severity uplift and any configured per-location exposure factor.
type SeverityRiskAnalyzer struct {
	// Exposure maps a location to an additive risk factor (e.g. dense
	// population, critical infrastructure). Missing locations score zero.
	Exposure map[string]int
}

// NewRiskAnalyzer creates the risk-analysis executor.
func NewRiskAnalyzer(exposure map[string]int) *SeverityRiskAnalyzer {
	return &SeverityRiskAnalyzer{Exposure: exposure}
}

// Name implements Executor.
func (*SeverityRiskAnalyzer) Name() Name { return RiskAnalyzer }

// Execute scores the event on the fixed 0–10 scale.
func (a *SeverityRiskAnalyzer) Execute(ctx context.Context, input Input) (Output, error) {
	event := input.Event
	if event.Severity < domain.SeverityMin || event.Severity > domain.SeverityMax {
		return Output{}, errors.Permanent("SEVERITY_OUT_OF_RANGE",
			fmt.Sprintf("severity %d outside [%d,%d]", event.Severity, domain.SeverityMin, domain.SeverityMax))
	}

	risk := event.Severity
	rationale := fmt.Sprintf("reported severity %d", event.Severity)

	if event.Severity < lowSeverityUpliftBound {
		risk++
		rationale += ", +1 low-severity reporting uplift"
	}
	if factor := a.Exposure[event.Location]; factor > 0 {
		risk += factor
		rationale += fmt.Sprintf(", +%d exposure factor for %s", factor, event.Location)
	}
	if risk > domain.SeverityMax {
		risk = domain.SeverityMax
	}

	return Output{Risk: &domain.RiskAssessment{
		RiskLevel: risk,
		Rationale: rationale,
	}}, nil
}

var _ Executor = (*SeverityRiskAnalyzer)(nil)
