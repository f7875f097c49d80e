package aws

import (
	"context"
	"sort"
	"time"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// Validators implements stack.Provisioner.
func (p *Provider) Validators(ref stack.DeploymentRef) ([]stack.Validator, error) {
	if p.client == nil {
		return nil, stack.ErrValidation("Cognito client not configured").WithProvider(ProviderName)
	}

	poolID := ref.ResourceIDs[stack.ResourceUserPoolID]
	if poolID == "" {
		return nil, stack.ErrValidation("user_pool_id not found in deployment ref").WithResource("deployment", ref.ID)
	}

	var validators []stack.Validator
	if p.stsClient != nil {
		validators = append(validators, &callerIdentityValidator{client: p.stsClient})
	}

	validators = append(validators, &userPoolExistsValidator{client: p.client, poolID: poolID})

	if identifier := ref.ResourceIDs[stack.ResourceServerIdentifier]; identifier != "" {
		validators = append(validators, &resourceServerScopeValidator{
			client:     p.client,
			poolID:     poolID,
			identifier: identifier,
			scope:      ref.Config.ScopeName,
		})
	}

	if clientID := ref.ResourceIDs[stack.ResourceClientID]; clientID != "" {
		validators = append(validators, &clientOAuthValidator{
			client:   p.client,
			poolID:   poolID,
			clientID: clientID,
			scopes:   expectedClientScopes(ref),
		})
	}

	if domain := ref.ResourceIDs[stack.ResourceDomain]; domain != "" {
		validators = append(validators, &domainActiveValidator{client: p.client, poolID: poolID, domain: domain})
	}

	return validators, nil
}

func expectedClientScopes(ref stack.DeploymentRef) []string {
	scopes := []string{"email", "openid", "profile"}
	if custom := ref.Outputs[stack.OutputScopeName]; custom != "" {
		scopes = append(scopes, custom)
	}
	return scopes
}

func newCheck(v stack.Validator, severity stack.Severity) stack.ValidationCheck {
	return stack.ValidationCheck{
		ID:          v.ID(),
		Name:        v.Name(),
		Description: v.Description(),
		Severity:    severity,
		Evidence:    make(map[string]interface{}),
	}
}

type callerIdentityValidator struct {
	client STSClient
}

func (v *callerIdentityValidator) ID() string   { return "aws_caller_identity" }
func (v *callerIdentityValidator) Name() string { return "AWS Credentials" }
func (v *callerIdentityValidator) Description() string {
	return "Checks that AWS credentials resolve to an identity"
}

func (v *callerIdentityValidator) Validate(ctx context.Context, ref stack.DeploymentRef) (check stack.ValidationCheck) {
	start := time.Now()
	check = newCheck(v, stack.SeverityCritical)
	defer func() { check.Duration = time.Since(start) }()

	id, err := v.client.GetCallerIdentity(ctx)
	if err != nil {
		check.Status = stack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Configure AWS credentials for the target account"
		return check
	}

	check.Status = stack.CheckStatusPassed
	check.Evidence["account"] = id.Account
	check.Evidence["arn"] = id.ARN
	return check
}

type userPoolExistsValidator struct {
	client CognitoClient
	poolID string
}

func (v *userPoolExistsValidator) ID() string   { return "cognito_user_pool_exists" }
func (v *userPoolExistsValidator) Name() string { return "User Pool Exists" }
func (v *userPoolExistsValidator) Description() string {
	return "Checks if the Cognito user pool exists"
}

func (v *userPoolExistsValidator) Validate(ctx context.Context, ref stack.DeploymentRef) stack.ValidationCheck {
	start := time.Now()
	check := newCheck(v, stack.SeverityCritical)
	check.Evidence["user_pool_id"] = v.poolID

	pool, err := v.client.DescribeUserPool(ctx, v.poolID)
	check.Duration = time.Since(start)
	if err != nil {
		check.Status = stack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again"
		return check
	}

	check.Status = stack.CheckStatusPassed
	check.Evidence["name"] = pool.Name
	check.Evidence["arn"] = pool.ARN
	return check
}

type resourceServerScopeValidator struct {
	client     CognitoClient
	poolID     string
	identifier string
	scope      string
}

func (v *resourceServerScopeValidator) ID() string   { return "cognito_resource_server_scope" }
func (v *resourceServerScopeValidator) Name() string { return "Resource Server Scope" }

func (v *resourceServerScopeValidator) Description() string {
	return "Checks that the resource server exists and defines the API scope"
}

func (v *resourceServerScopeValidator) Validate(ctx context.Context, ref stack.DeploymentRef) (check stack.ValidationCheck) {
	start := time.Now()
	check = newCheck(v, stack.SeverityError)
	check.Evidence["identifier"] = v.identifier
	defer func() { check.Duration = time.Since(start) }()

	server, err := v.client.DescribeResourceServer(ctx, v.poolID, v.identifier)
	if err != nil {
		check.Status = stack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again"
		return check
	}

	names := make([]string, 0, len(server.Scopes))
	found := v.scope == ""
	for _, s := range server.Scopes {
		names = append(names, s.Name)
		if s.Name == v.scope {
			found = true
		}
	}
	check.Evidence["scopes"] = names

	if !found {
		check.Status = stack.CheckStatusFailed
		check.Evidence["missing_scope"] = v.scope
		check.Remediation = "Add the scope to the resource server"
		return check
	}

	check.Status = stack.CheckStatusPassed
	return check
}

type clientOAuthValidator struct {
	client   CognitoClient
	poolID   string
	clientID string
	scopes   []string
}

func (v *clientOAuthValidator) ID() string   { return "cognito_client_oauth" }
func (v *clientOAuthValidator) Name() string { return "Client OAuth Settings" }

func (v *clientOAuthValidator) Description() string {
	return "Checks the client uses the authorization code flow with the expected scopes"
}

func (v *clientOAuthValidator) Validate(ctx context.Context, ref stack.DeploymentRef) (check stack.ValidationCheck) {
	start := time.Now()
	check = newCheck(v, stack.SeverityError)
	check.Evidence["client_id"] = v.clientID
	defer func() { check.Duration = time.Since(start) }()

	client, err := v.client.DescribeUserPoolClient(ctx, v.poolID, v.clientID)
	if err != nil {
		check.Status = stack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again"
		return check
	}

	check.Evidence["flows"] = client.AllowedOAuthFlows
	check.Evidence["scopes"] = client.AllowedOAuthScopes

	var problems []string
	if len(client.AllowedOAuthFlows) != 1 || client.AllowedOAuthFlows[0] != "code" {
		problems = append(problems, "only the authorization code flow may be enabled")
	}
	if !sameSet(client.AllowedOAuthScopes, v.scopes) {
		problems = append(problems, "scopes differ from the stack definition")
	}
	if !contains(client.CallbackURLs, stack.CallbackURL) {
		problems = append(problems, "callback URL "+stack.CallbackURL+" not registered")
	}

	if len(problems) > 0 {
		check.Status = stack.CheckStatusFailed
		check.Evidence["problems"] = problems
		check.Remediation = "Restore the client's OAuth settings or redeploy the stack"
		return check
	}

	check.Status = stack.CheckStatusPassed
	return check
}

type domainActiveValidator struct {
	client CognitoClient
	poolID string
	domain string
}

func (v *domainActiveValidator) ID() string          { return "cognito_domain_active" }
func (v *domainActiveValidator) Name() string        { return "Hosted Domain Active" }
func (v *domainActiveValidator) Description() string { return "Checks the hosted domain is active" }

func (v *domainActiveValidator) Validate(ctx context.Context, ref stack.DeploymentRef) (check stack.ValidationCheck) {
	start := time.Now()
	check = newCheck(v, stack.SeverityError)
	check.Evidence["domain"] = v.domain
	defer func() { check.Duration = time.Since(start) }()

	domain, err := v.client.DescribeUserPoolDomain(ctx, v.domain)
	if err != nil {
		check.Status = stack.CheckStatusFailed
		check.Evidence["error"] = err.Error()
		check.Remediation = "Deploy the stack again"
		return check
	}
	check.Evidence["status"] = domain.Status

	if domain.UserPoolID != v.poolID {
		check.Status = stack.CheckStatusFailed
		check.Evidence["user_pool_id"] = domain.UserPoolID
		check.Remediation = "The domain prefix is bound to another user pool"
		return check
	}

	// A new domain stays CREATING for a few minutes.
	if domain.Status != "ACTIVE" {
		check.Severity = stack.SeverityWarning
		check.Status = stack.CheckStatusFailed
		check.Remediation = "Wait for the domain to finish provisioning"
		return check
	}

	check.Status = stack.CheckStatusPassed
	return check
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
