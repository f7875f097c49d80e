package stack

import (
	"context"
	"encoding/json"
	"time"
)

// DeploymentRef is a stable reference to a provisioned stack instance.
// It contains the identifiers needed to validate or destroy it.
type DeploymentRef struct {
	// ID is a unique identifier for this deployment.
	ID string `json:"id"`

	// StackName is the name of the deployed stack.
	StackName string `json:"stack_name"`

	// Provider is the provisioner that created the deployment.
	Provider string `json:"provider"`

	// Region is the AWS region the stack was deployed to.
	Region string `json:"region,omitempty"`

	// ResourceIDs contains physical identifiers keyed by resource key
	// (e.g. "user_pool_id", "client_id").
	ResourceIDs map[string]string `json:"resource_ids"`

	// Outputs contains the resolved stack outputs.
	Outputs map[string]string `json:"outputs"`

	// Config is the configuration the stack was assembled from.
	Config Config `json:"config"`

	// CreatedAt is when the deployment was created.
	CreatedAt time.Time `json:"created_at"`

	// Owned indicates whether the resources were created by this tool
	// and can be safely destroyed.
	Owned bool `json:"owned"`

	// Version tracks schema version for migration purposes.
	Version int `json:"version"`
}

// Resource keys used in DeploymentRef.ResourceIDs.
const (
	ResourceUserPoolID               = "user_pool_id"
	ResourceUserPoolARN              = "user_pool_arn"
	ResourceServerIdentifier         = "resource_server_identifier"
	ResourceClientID                 = "client_id"
	ResourceDomain                   = "domain"
	ResourceDomainCloudFrontEndpoint = "cloudfront_domain"
)

// String implements fmt.Stringer for DeploymentRef.
func (r DeploymentRef) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// Outputs contains the results of a deploy operation.
type Outputs struct {
	// Ref is the reference to the deployment.
	Ref DeploymentRef `json:"ref"`

	// Values contains the resolved stack outputs keyed by output name.
	Values map[string]string `json:"values,omitempty"`

	// Plan is set for dry runs.
	Plan *Plan `json:"plan,omitempty"`

	// Instructions contains human-readable follow-up steps.
	Instructions []string `json:"instructions,omitempty"`
}

// Severity indicates the severity level of a validation check.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// CheckStatus indicates the result of a validation check.
type CheckStatus string

const (
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusSkipped CheckStatus = "skipped"
	CheckStatusUnknown CheckStatus = "unknown"
)

// ValidationCheck represents a single validation check result.
type ValidationCheck struct {
	// ID is a unique identifier for this check type.
	ID string `json:"id"`

	// Name is a human-readable name for the check.
	Name string `json:"name"`

	// Description explains what this check validates.
	Description string `json:"description"`

	// Status is the check result.
	Status CheckStatus `json:"status"`

	// Severity indicates how serious a failure would be.
	Severity Severity `json:"severity"`

	// Evidence contains data supporting the check result.
	Evidence map[string]interface{} `json:"evidence,omitempty"`

	// Remediation contains steps to fix a failed check.
	Remediation string `json:"remediation,omitempty"`

	// Duration is how long the check took to run.
	Duration time.Duration `json:"duration"`
}

// ValidationReport contains the results of validating a deployment.
type ValidationReport struct {
	Ref         DeploymentRef     `json:"ref"`
	Checks      []ValidationCheck `json:"checks"`
	Summary     ValidationSummary `json:"summary"`
	ValidatedAt time.Time         `json:"validated_at"`
}

// ValidationSummary provides aggregate validation statistics.
type ValidationSummary struct {
	TotalChecks   int  `json:"total_checks"`
	PassedChecks  int  `json:"passed_checks"`
	FailedChecks  int  `json:"failed_checks"`
	SkippedChecks int  `json:"skipped_checks"`
	IsValid       bool `json:"is_valid"`
}

// IsValid returns true unless a check of error severity or above failed.
func (r *ValidationReport) IsValid() bool {
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed && check.Severity.rank() >= SeverityError.rank() {
			return false
		}
	}
	return true
}

// FailedChecks returns only the checks that failed.
func (r *ValidationReport) FailedChecks() []ValidationCheck {
	var failed []ValidationCheck
	for _, check := range r.Checks {
		if check.Status == CheckStatusFailed {
			failed = append(failed, check)
		}
	}
	return failed
}

// Plan represents a set of planned actions for dry-run mode.
type Plan struct {
	// Actions lists the planned operations in execution order.
	Actions []PlannedAction `json:"actions"`

	// Summary provides a human-readable summary.
	Summary string `json:"summary"`
}

// PlannedAction represents a single action that would be taken.
type PlannedAction struct {
	// Operation is the type of operation (declare, create, delete).
	Operation string `json:"operation"`

	// ResourceType is the type of resource affected.
	ResourceType string `json:"resource_type"`

	// ResourceID is the ID of the resource (if known).
	ResourceID string `json:"resource_id,omitempty"`

	// Details contains operation-specific details.
	Details map[string]interface{} `json:"details,omitempty"`

	// Reversible indicates whether this action can be rolled back.
	Reversible bool `json:"reversible"`
}

// DeployOptions configures a Deploy operation.
type DeployOptions struct {
	// DryRun if true, returns a Plan instead of making changes.
	DryRun bool

	// Tags to apply to the user pool.
	Tags map[string]string
}

// ValidateOptions configures a Validate operation.
type ValidateOptions struct {
	// CheckIDs limits validation to specific checks.
	CheckIDs []string

	// Timeout for the validation operation.
	Timeout time.Duration
}

// DestroyOptions configures a Destroy operation.
type DestroyOptions struct {
	// DryRun if true, reports what would be deleted without making changes.
	DryRun bool

	// Force if true, destroy even non-owned deployments.
	Force bool

	// Confirm is a callback that must return true to proceed.
	Confirm func(Plan) bool
}

// ListFilter specifies criteria for listing deployments.
type ListFilter struct {
	StackName string
	Provider  string
	Limit     int
	Offset    int
}

// Provisioner applies stacks against an identity platform.
type Provisioner interface {
	// Name returns the provisioner identifier.
	Name() string

	// Apply creates the stack's resources in construction order.
	// With DryRun set it returns a Plan without making changes.
	Apply(ctx context.Context, s *Stack, opts DeployOptions) (*Outputs, error)

	// Validators returns the checks applicable to a deployment.
	Validators(ref DeploymentRef) ([]Validator, error)

	// Destroy removes a deployment's resources in reverse order.
	// Destroying already-deleted resources succeeds.
	Destroy(ctx context.Context, ref DeploymentRef, opts DestroyOptions) error
}
