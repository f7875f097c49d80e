package stack

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager runs the deployment lifecycle of stacks through a Provisioner and
// records deployments in a StateStore.
type Manager struct {
	provisioner Provisioner
	stateStore  StateStore
	logger      *zap.Logger
	validators  []Validator
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithStateStore sets the state store.
func WithStateStore(s StateStore) ManagerOption {
	return func(m *Manager) {
		m.stateStore = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithValidators adds validators run for every deployment in addition to
// the provisioner's own.
func WithValidators(v ...Validator) ManagerOption {
	return func(m *Manager) {
		m.validators = append(m.validators, v...)
	}
}

// NewManager creates a Manager for p.
func NewManager(p Provisioner, opts ...ManagerOption) *Manager {
	m := &Manager{
		provisioner: p,
		stateStore:  NewMemoryStateStore(),
		logger:      zap.NewNop(),
		validators:  []Validator{OutputsPresentValidator{}},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Deploy provisions s and records the deployment. With DryRun set the
// returned Outputs carry a Plan and nothing is recorded. If the resources
// were created but the record could not be saved, Deploy returns the Outputs
// together with an *UnrecordedError.
func (m *Manager) Deploy(ctx context.Context, s *Stack, opts DeployOptions) (*Outputs, error) {
	log := m.logger.With(zap.String("stack", s.Name), zap.String("provider", m.provisioner.Name()))
	log.Info("deploying stack", zap.Bool("dry_run", opts.DryRun), zap.Int("constructs", len(s.Constructs())))

	outputs, err := m.provisioner.Apply(ctx, s, opts)
	if err != nil {
		log.Error("deploy failed", zap.Error(err))
		return nil, err
	}

	if opts.DryRun {
		return outputs, nil
	}

	if err := m.stateStore.Save(ctx, outputs.Ref); err != nil {
		log.Error("failed to save deployment state",
			zap.String("deployment", outputs.Ref.ID),
			zap.Any("resource_ids", outputs.Ref.ResourceIDs),
			zap.Error(err))
		return outputs, &UnrecordedError{Ref: outputs.Ref, Err: err}
	}

	log.Info("stack deployed", zap.String("deployment", outputs.Ref.ID), zap.Any("outputs", outputs.Values))
	return outputs, nil
}

// Validate runs the deployment's checks and returns a report.
func (m *Manager) Validate(ctx context.Context, ref DeploymentRef, opts ValidateOptions) (*ValidationReport, error) {
	validators, err := m.provisioner.Validators(ref)
	if err != nil {
		return nil, err
	}
	validators = append(append([]Validator{}, m.validators...), validators...)
	validators = FilterValidators(validators, opts.CheckIDs)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	report := RunValidation(ctx, ref, validators)
	m.logger.Info("deployment validated",
		zap.String("deployment", ref.ID),
		zap.Bool("valid", report.IsValid()),
		zap.Int("failed", report.Summary.FailedChecks),
	)
	return report, nil
}

// Destroy removes a deployment's resources. Deployments not recorded as owned
// are refused unless Force is set.
func (m *Manager) Destroy(ctx context.Context, ref DeploymentRef, opts DestroyOptions) error {
	recorded, err := m.stateStore.Exists(ctx, ref.ID)
	if err != nil {
		return err
	}

	owned := false
	if recorded {
		stored, err := m.stateStore.Get(ctx, ref.ID)
		if err != nil {
			return err
		}
		owned = stored.Owned
	}
	if !owned && !opts.Force {
		return ErrPermission("deployment not owned by cognito-stack; use Force to override").
			WithResource("deployment", ref.ID)
	}

	if opts.Confirm != nil && !opts.DryRun {
		if !opts.Confirm(DestroyPlan(ref)) {
			return ErrValidation("destroy cancelled by user").WithResource("deployment", ref.ID)
		}
	}

	// A forced destroy claims the record, so a retry after a partial failure
	// needs no Force.
	if recorded && !owned && !opts.DryRun {
		if err := m.stateStore.UpdateOwnership(ctx, ref.ID, true); err != nil {
			return err
		}
		m.logger.Info("took ownership of deployment", zap.String("deployment", ref.ID))
	}

	if err := m.provisioner.Destroy(ctx, ref, opts); err != nil {
		m.logger.Error("destroy failed", zap.String("deployment", ref.ID), zap.Error(err))
		return err
	}

	if opts.DryRun {
		return nil
	}

	if err := m.stateStore.Delete(ctx, ref.ID); err != nil {
		m.logger.Warn("failed to remove deployment from state", zap.String("deployment", ref.ID), zap.Error(err))
	}
	m.logger.Info("deployment destroyed", zap.String("deployment", ref.ID))
	return nil
}

// Get retrieves a recorded deployment by ID.
func (m *Manager) Get(ctx context.Context, id string) (*DeploymentRef, error) {
	return m.stateStore.Get(ctx, id)
}

// List returns recorded deployments matching filter.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]DeploymentRef, error) {
	return m.stateStore.List(ctx, filter)
}

// DestroyPlan describes the deletions Destroy performs for ref, in order.
func DestroyPlan(ref DeploymentRef) Plan {
	steps := []struct {
		resourceType string
		key          string
	}{
		{"cognito:user-pool-domain", ResourceDomain},
		{"cognito:user-pool-client", ResourceClientID},
		{"cognito:resource-server", ResourceServerIdentifier},
		{"cognito:user-pool", ResourceUserPoolID},
	}

	plan := Plan{}
	for _, step := range steps {
		id := ref.ResourceIDs[step.key]
		if id == "" {
			continue
		}
		plan.Actions = append(plan.Actions, PlannedAction{
			Operation:    "delete",
			ResourceType: step.resourceType,
			ResourceID:   id,
			Reversible:   false,
		})
	}
	plan.Summary = fmt.Sprintf("Delete deployment %s and %d associated resources", ref.ID, len(plan.Actions))
	return plan
}

// GenerateDeploymentID generates a unique ID for a deployment.
func GenerateDeploymentID(stackName string) string {
	return fmt.Sprintf("%s-%s", stackName, uuid.New().String()[:8])
}

// NewDeploymentRef creates a DeploymentRef with standard fields populated.
func NewDeploymentRef(s *Stack, provider string, resourceIDs, outputs map[string]string) DeploymentRef {
	return DeploymentRef{
		ID:          GenerateDeploymentID(s.Name),
		StackName:   s.Name,
		Provider:    provider,
		ResourceIDs: resourceIDs,
		Outputs:     outputs,
		Config:      s.Config(),
		CreatedAt:   time.Now(),
		Owned:       true,
		Version:     StateStoreVersion,
	}
}
