package stack

import (
	"context"
	"time"
)

// Validator performs a validation check on a deployment.
type Validator interface {
	// ID returns the unique identifier for this validator.
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Description returns what this validator checks.
	Description() string

	// Validate performs the validation check.
	Validate(ctx context.Context, ref DeploymentRef) ValidationCheck
}

// OutputsPresentValidator checks that every stack output resolved to a
// non-empty value.
type OutputsPresentValidator struct{}

func (OutputsPresentValidator) ID() string   { return "outputs_present" }
func (OutputsPresentValidator) Name() string { return "Stack Outputs Present" }

func (OutputsPresentValidator) Description() string {
	return "Checks that userpoolId, reactClientId, domain and scopeName are recorded"
}

func (v OutputsPresentValidator) Validate(ctx context.Context, ref DeploymentRef) ValidationCheck {
	start := time.Now()
	check := ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    SeverityError,
		Evidence:    make(map[string]interface{}),
	}

	var missing []string
	for _, name := range OutputNames {
		if ref.Outputs[name] == "" {
			missing = append(missing, name)
			continue
		}
		check.Evidence[name] = ref.Outputs[name]
	}

	if len(missing) > 0 {
		check.Status = CheckStatusFailed
		check.Evidence["missing"] = missing
		check.Remediation = "Redeploy the stack to record its outputs"
	} else {
		check.Status = CheckStatusPassed
	}
	check.Duration = time.Since(start)
	return check
}

// RunValidation executes a set of validators and returns a report.
func RunValidation(ctx context.Context, ref DeploymentRef, validators []Validator) *ValidationReport {
	report := &ValidationReport{
		Ref:         ref,
		Checks:      make([]ValidationCheck, 0, len(validators)),
		ValidatedAt: time.Now(),
	}

	for _, v := range validators {
		var check ValidationCheck
		if err := ctx.Err(); err != nil {
			check = ValidationCheck{
				ID:          v.ID(),
				Name:        v.Name(),
				Description: v.Description(),
				Status:      CheckStatusSkipped,
				Severity:    SeverityInfo,
				Evidence:    map[string]interface{}{"error": err.Error()},
			}
		} else {
			check = v.Validate(ctx, ref)
		}
		report.Checks = append(report.Checks, check)

		switch check.Status {
		case CheckStatusPassed:
			report.Summary.PassedChecks++
		case CheckStatusFailed:
			report.Summary.FailedChecks++
		case CheckStatusSkipped:
			report.Summary.SkippedChecks++
		}
		report.Summary.TotalChecks++
	}

	report.Summary.IsValid = report.IsValid()
	return report
}

// FilterValidators keeps validators whose IDs appear in ids. An empty ids
// keeps all.
func FilterValidators(validators []Validator, ids []string) []Validator {
	if len(ids) == 0 {
		return validators
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := make([]Validator, 0, len(validators))
	for _, v := range validators {
		if want[v.ID()] {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
