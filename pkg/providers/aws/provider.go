// Package aws provisions Cognito identity stacks through the Cognito
// Identity Provider API.
package aws

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// ProviderName identifies this provisioner in deployment records.
const ProviderName = "aws"

// rollbackTimeout bounds cleanup after a failed or interrupted Apply.
const rollbackTimeout = 2 * time.Minute

// Provider implements stack.Provisioner for AWS Cognito.
type Provider struct {
	client    CognitoClient
	stsClient STSClient
	region    string
	logger    *zap.Logger
}

// CognitoClient abstracts the Cognito Identity Provider operations the stack
// needs.
type CognitoClient interface {
	// User pool operations
	CreateUserPool(ctx context.Context, input *CreateUserPoolInput) (*UserPool, error)
	DescribeUserPool(ctx context.Context, poolID string) (*UserPool, error)
	DeleteUserPool(ctx context.Context, poolID string) error

	// Resource server operations
	CreateResourceServer(ctx context.Context, input *CreateResourceServerInput) (*ResourceServer, error)
	DescribeResourceServer(ctx context.Context, poolID, identifier string) (*ResourceServer, error)
	DeleteResourceServer(ctx context.Context, poolID, identifier string) error

	// Client operations
	CreateUserPoolClient(ctx context.Context, input *CreateUserPoolClientInput) (*UserPoolClient, error)
	DescribeUserPoolClient(ctx context.Context, poolID, clientID string) (*UserPoolClient, error)
	DeleteUserPoolClient(ctx context.Context, poolID, clientID string) error

	// Domain operations
	CreateUserPoolDomain(ctx context.Context, input *CreateUserPoolDomainInput) (*UserPoolDomain, error)
	DescribeUserPoolDomain(ctx context.Context, domain string) (*UserPoolDomain, error)
	DeleteUserPoolDomain(ctx context.Context, poolID, domain string) error
}

// STSClient abstracts AWS STS for credential checks.
type STSClient interface {
	GetCallerIdentity(ctx context.Context) (*CallerIdentity, error)
}

// CallerIdentity is the identity behind the configured credentials.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// UserPool represents a Cognito user pool.
type UserPool struct {
	ID     string
	ARN    string
	Name   string
	Domain string
}

// Scope is a resource server scope.
type Scope struct {
	Name        string
	Description string
}

// ResourceServer represents a Cognito resource server.
type ResourceServer struct {
	UserPoolID string
	Identifier string
	Name       string
	Scopes     []Scope
}

// UserPoolClient represents a Cognito app client.
type UserPoolClient struct {
	UserPoolID                      string
	ClientID                        string
	ClientName                      string
	AllowedOAuthFlows               []string
	AllowedOAuthFlowsUserPoolClient bool
	AllowedOAuthScopes              []string
	CallbackURLs                    []string
	LogoutURLs                      []string
}

// UserPoolDomain represents a Cognito-hosted domain.
type UserPoolDomain struct {
	Domain           string
	UserPoolID       string
	Status           string
	CloudFrontDomain string
}

// CreateUserPoolInput contains parameters for creating a user pool.
type CreateUserPoolInput struct {
	PoolName            string
	AdminCreateUserOnly bool
	// RecoveryMechanisms in priority order.
	RecoveryMechanisms []string
	Tags               map[string]string
}

// CreateResourceServerInput contains parameters for creating a resource server.
type CreateResourceServerInput struct {
	UserPoolID string
	Identifier string
	Name       string
	Scopes     []Scope
}

// CreateUserPoolClientInput contains parameters for creating an app client.
type CreateUserPoolClientInput struct {
	UserPoolID                 string
	ClientName                 string
	GenerateSecret             bool
	CallbackURLs               []string
	LogoutURLs                 []string
	AllowedOAuthFlows          []string
	AllowedOAuthScopes         []string
	SupportedIdentityProviders []string
}

// CreateUserPoolDomainInput contains parameters for creating a domain.
type CreateUserPoolDomainInput struct {
	UserPoolID string
	Domain     string
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithCognitoClient sets the Cognito client.
func WithCognitoClient(client CognitoClient) ProviderOption {
	return func(p *Provider) {
		p.client = client
	}
}

// WithSTSClient sets the STS client used by the caller identity check.
func WithSTSClient(client STSClient) ProviderOption {
	return func(p *Provider) {
		p.stsClient = client
	}
}

// WithRegion records the region the clients talk to.
func WithRegion(region string) ProviderOption {
	return func(p *Provider) {
		p.region = region
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates a new AWS provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements stack.Provisioner.
func (p *Provider) Name() string {
	return ProviderName
}

// createdResource is a resource created during Apply, kept for rollback.
type createdResource struct {
	kind stack.Kind
	id   string
	pool string
}

func (r createdResource) String() string {
	return fmt.Sprintf("%s:%s", r.kind, r.id)
}

// Plan describes the requests Apply issues for s, in order.
func Plan(s *stack.Stack) stack.Plan {
	var plan stack.Plan
	for _, c := range s.Constructs() {
		action := stack.PlannedAction{
			Operation:    "create",
			ResourceType: string(c.Kind()),
			Details:      map[string]interface{}{"path": c.Path()},
			Reversible:   true,
		}
		switch v := c.(type) {
		case *stack.UserPool:
			action.Details["pool_name"] = v.Name
		case *stack.ResourceServerScope:
			action.Operation = "declare"
			action.Details["scope_name"] = v.ScopeName
			action.Details["scope_description"] = v.ScopeDescription
		case *stack.ResourceServer:
			action.ResourceID = v.Identifier
			action.Details["name"] = v.Name
			action.Details["identifier"] = v.Identifier
		case *stack.UserPoolClient:
			action.Details["client_name"] = v.Name
			action.Details["callback_urls"] = v.CallbackURLs
			action.Details["oauth_flows"] = v.Flows.Names()
			action.Details["oauth_scopes"] = v.ScopeNames()
		case *stack.UserPoolDomain:
			action.ResourceID = v.DomainPrefix
			action.Details["domain_prefix"] = v.DomainPrefix
		}
		plan.Actions = append(plan.Actions, action)
	}
	plan.Summary = fmt.Sprintf("Would declare %d constructs for stack %s", len(plan.Actions), s.Name)
	return plan
}

// Apply implements stack.Provisioner.
func (p *Provider) Apply(ctx context.Context, s *stack.Stack, opts stack.DeployOptions) (*stack.Outputs, error) {
	if opts.DryRun {
		plan := Plan(s)
		ref := stack.NewDeploymentRef(s, p.Name(), map[string]string{}, map[string]string{})
		ref.Region = p.region
		return &stack.Outputs{
			Ref:    ref,
			Values: map[string]string{"plan": plan.Summary},
			Plan:   &plan,
		}, nil
	}

	if p.client == nil {
		return nil, stack.ErrValidation("Cognito client not configured").
			WithProvider(ProviderName).
			WithDetail("hint", "Configure AWS credentials or use --dry-run")
	}

	physical := make(map[string]string)
	resourceIDs := make(map[string]string)
	var created []createdResource

	fail := func(err error) error {
		if len(created) == 0 {
			return err
		}
		// Cleanup must outlive an interrupted deploy context.
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		cleaned, orphaned, rbErrs := p.rollback(rbCtx, created)
		return &stack.RollbackError{
			OriginalError:     err,
			RollbackErrors:    rbErrs,
			CleanedResources:  cleaned,
			OrphanedResources: orphaned,
		}
	}

	for _, c := range s.Constructs() {
		if err := ctx.Err(); err != nil {
			return nil, fail(stack.ErrTimeout("deploy interrupted").WithCause(err).WithProvider(ProviderName))
		}

		switch v := c.(type) {
		case *stack.UserPool:
			pool, err := p.client.CreateUserPool(ctx, &CreateUserPoolInput{
				PoolName:            v.Name,
				AdminCreateUserOnly: v.AdminCreateUserOnly,
				RecoveryMechanisms:  v.RecoveryNames(),
				Tags:                mergeTags(opts.Tags, s.Name),
			})
			if err != nil {
				return nil, fail(classify(err, "failed to create user pool", "cognito:user-pool", v.Name))
			}
			physical[v.Path()] = pool.ID
			resourceIDs[stack.ResourceUserPoolID] = pool.ID
			resourceIDs[stack.ResourceUserPoolARN] = pool.ARN
			created = append(created, createdResource{kind: stack.KindUserPool, id: pool.ID})
			p.logger.Info("created user pool", zap.String("pool_id", pool.ID), zap.String("name", v.Name))

		case *stack.ResourceServerScope:
			// Scopes are sent as part of the resource server request.
			p.logger.Debug("declared scope", zap.String("scope", v.ScopeName))

		case *stack.ResourceServer:
			poolID := physical[v.Pool.Path()]
			scopes := make([]Scope, 0, len(v.Scopes))
			for _, sc := range v.Scopes {
				scopes = append(scopes, Scope{Name: sc.ScopeName, Description: sc.ScopeDescription})
			}
			server, err := p.client.CreateResourceServer(ctx, &CreateResourceServerInput{
				UserPoolID: poolID,
				Identifier: v.Identifier,
				Name:       v.Name,
				Scopes:     scopes,
			})
			if err != nil {
				return nil, fail(classify(err, "failed to create resource server", "cognito:resource-server", v.Identifier))
			}
			physical[v.Path()] = server.Identifier
			resourceIDs[stack.ResourceServerIdentifier] = server.Identifier
			created = append(created, createdResource{kind: stack.KindResourceServer, id: server.Identifier, pool: poolID})
			p.logger.Info("created resource server", zap.String("identifier", server.Identifier))

		case *stack.UserPoolClient:
			poolID := physical[v.Pool.Path()]
			scopes := make([]string, 0, len(v.Scopes))
			for _, sc := range v.Scopes {
				name, err := stack.Resolve(sc.Expr(), physical)
				if err != nil {
					return nil, fail(err)
				}
				scopes = append(scopes, name)
			}
			client, err := p.client.CreateUserPoolClient(ctx, &CreateUserPoolClientInput{
				UserPoolID:                 poolID,
				ClientName:                 v.Name,
				GenerateSecret:             v.GenerateSecret,
				CallbackURLs:               v.CallbackURLs,
				LogoutURLs:                 v.LogoutURLs,
				AllowedOAuthFlows:          v.Flows.Names(),
				AllowedOAuthScopes:         scopes,
				SupportedIdentityProviders: []string{"COGNITO"},
			})
			if err != nil {
				return nil, fail(classify(err, "failed to create user pool client", "cognito:user-pool-client", v.Name))
			}
			physical[v.Path()] = client.ClientID
			resourceIDs[stack.ResourceClientID] = client.ClientID
			created = append(created, createdResource{kind: stack.KindUserPoolClient, id: client.ClientID, pool: poolID})
			p.logger.Info("created user pool client", zap.String("client_id", client.ClientID), zap.Strings("scopes", scopes))

		case *stack.UserPoolDomain:
			poolID := physical[v.Pool.Path()]
			domain, err := p.client.CreateUserPoolDomain(ctx, &CreateUserPoolDomainInput{
				UserPoolID: poolID,
				Domain:     v.DomainPrefix,
			})
			if err != nil {
				return nil, fail(classify(err, "failed to create user pool domain", "cognito:user-pool-domain", v.DomainPrefix))
			}
			physical[v.Path()] = domain.Domain
			resourceIDs[stack.ResourceDomain] = domain.Domain
			if domain.CloudFrontDomain != "" {
				resourceIDs[stack.ResourceDomainCloudFrontEndpoint] = domain.CloudFrontDomain
			}
			created = append(created, createdResource{kind: stack.KindUserPoolDomain, id: domain.Domain, pool: poolID})
			p.logger.Info("created user pool domain", zap.String("domain", domain.Domain))

		default:
			return nil, fail(stack.ErrValidation(fmt.Sprintf("unsupported construct: %T", c)).WithProvider(ProviderName))
		}
	}

	values, err := s.ResolveOutputs(physical)
	if err != nil {
		return nil, fail(err)
	}

	ref := stack.NewDeploymentRef(s, p.Name(), resourceIDs, values)
	ref.Region = p.region

	outputs := &stack.Outputs{Ref: ref, Values: values}
	if p.region != "" {
		outputs.Instructions = append(outputs.Instructions,
			fmt.Sprintf("Hosted UI: %s", HostedUIURL(values[stack.OutputDomain], p.region)))
	}
	return outputs, nil
}

// HostedUIURL returns the base URL of the Cognito-hosted login page.
func HostedUIURL(domainPrefix, region string) string {
	return fmt.Sprintf("https://%s.auth.%s.amazoncognito.com", domainPrefix, region)
}

// Destroy implements stack.Provisioner.
func (p *Provider) Destroy(ctx context.Context, ref stack.DeploymentRef, opts stack.DestroyOptions) error {
	poolID := ref.ResourceIDs[stack.ResourceUserPoolID]
	if poolID == "" {
		return stack.ErrValidation("user_pool_id not found in deployment ref").WithResource("deployment", ref.ID)
	}

	if opts.DryRun {
		return nil
	}

	if p.client == nil {
		return stack.ErrValidation("Cognito client not configured").WithProvider(ProviderName)
	}

	// Step 1: hosted domain
	if domain := ref.ResourceIDs[stack.ResourceDomain]; domain != "" {
		if err := p.client.DeleteUserPoolDomain(ctx, poolID, domain); err != nil && !isNotFoundError(err) {
			return classify(err, "failed to delete user pool domain", "cognito:user-pool-domain", domain)
		}
	}

	// Step 2: app client
	if clientID := ref.ResourceIDs[stack.ResourceClientID]; clientID != "" {
		if err := p.client.DeleteUserPoolClient(ctx, poolID, clientID); err != nil && !isNotFoundError(err) {
			return classify(err, "failed to delete user pool client", "cognito:user-pool-client", clientID)
		}
	}

	// Step 3: resource server
	if identifier := ref.ResourceIDs[stack.ResourceServerIdentifier]; identifier != "" {
		if err := p.client.DeleteResourceServer(ctx, poolID, identifier); err != nil && !isNotFoundError(err) {
			return classify(err, "failed to delete resource server", "cognito:resource-server", identifier)
		}
	}

	// Step 4: the pool itself
	if err := p.client.DeleteUserPool(ctx, poolID); err != nil && !isNotFoundError(err) {
		return classify(err, "failed to delete user pool", "cognito:user-pool", poolID)
	}

	p.logger.Info("destroyed deployment", zap.String("deployment", ref.ID), zap.String("pool_id", poolID))
	return nil
}

// rollback deletes created resources in reverse creation order.
func (p *Provider) rollback(ctx context.Context, created []createdResource) (cleaned, orphaned []string, errs []error) {
	for i := len(created) - 1; i >= 0; i-- {
		res := created[i]
		var err error
		switch res.kind {
		case stack.KindUserPoolDomain:
			err = p.client.DeleteUserPoolDomain(ctx, res.pool, res.id)
		case stack.KindUserPoolClient:
			err = p.client.DeleteUserPoolClient(ctx, res.pool, res.id)
		case stack.KindResourceServer:
			err = p.client.DeleteResourceServer(ctx, res.pool, res.id)
		case stack.KindUserPool:
			err = p.client.DeleteUserPool(ctx, res.id)
		}
		if err != nil && !isNotFoundError(err) {
			p.logger.Warn("rollback failed", zap.Stringer("resource", res), zap.Error(err))
			orphaned = append(orphaned, res.String())
			errs = append(errs, err)
			continue
		}
		cleaned = append(cleaned, res.String())
	}
	return cleaned, orphaned, errs
}

func mergeTags(base map[string]string, stackName string) map[string]string {
	result := make(map[string]string, len(base)+2)
	for k, v := range base {
		result[k] = v
	}
	result["managed-by"] = "cognito-stack"
	result["stack-name"] = stackName
	return result
}
