package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// fakeCognito records calls and keeps created resources in memory.
type fakeCognito struct {
	calls []string

	pools   map[string]*UserPool
	servers map[string]*ResourceServer
	clients map[string]*UserPoolClient
	domains map[string]*UserPoolDomain

	failOn  string
	failErr error
	seq     int

	poolInput *CreateUserPoolInput
}

func newFakeCognito() *fakeCognito {
	return &fakeCognito{
		pools:   make(map[string]*UserPool),
		servers: make(map[string]*ResourceServer),
		clients: make(map[string]*UserPoolClient),
		domains: make(map[string]*UserPoolDomain),
	}
}

func (f *fakeCognito) record(call string) error {
	f.calls = append(f.calls, call)
	if call == f.failOn {
		if f.failErr != nil {
			return f.failErr
		}
		return &smithy.GenericAPIError{Code: "InvalidParameterException", Message: "rejected"}
	}
	return nil
}

func notFound(what string) error {
	return &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: what + " does not exist"}
}

func (f *fakeCognito) CreateUserPool(ctx context.Context, in *CreateUserPoolInput) (*UserPool, error) {
	if err := f.record("CreateUserPool"); err != nil {
		return nil, err
	}
	f.poolInput = in
	f.seq++
	id := fmt.Sprintf("us-east-1_pool%d", f.seq)
	pool := &UserPool{ID: id, ARN: "arn:aws:cognito-idp:us-east-1:123456789012:userpool/" + id, Name: in.PoolName}
	f.pools[id] = pool
	return pool, nil
}

func (f *fakeCognito) DescribeUserPool(ctx context.Context, poolID string) (*UserPool, error) {
	if err := f.record("DescribeUserPool"); err != nil {
		return nil, err
	}
	if p, ok := f.pools[poolID]; ok {
		return p, nil
	}
	return nil, notFound("user pool")
}

func (f *fakeCognito) DeleteUserPool(ctx context.Context, poolID string) error {
	if err := f.record("DeleteUserPool"); err != nil {
		return err
	}
	if _, ok := f.pools[poolID]; !ok {
		return notFound("user pool")
	}
	delete(f.pools, poolID)
	return nil
}

func (f *fakeCognito) CreateResourceServer(ctx context.Context, in *CreateResourceServerInput) (*ResourceServer, error) {
	if err := f.record("CreateResourceServer"); err != nil {
		return nil, err
	}
	server := &ResourceServer{UserPoolID: in.UserPoolID, Identifier: in.Identifier, Name: in.Name, Scopes: in.Scopes}
	f.servers[in.Identifier] = server
	return server, nil
}

func (f *fakeCognito) DescribeResourceServer(ctx context.Context, poolID, identifier string) (*ResourceServer, error) {
	if err := f.record("DescribeResourceServer"); err != nil {
		return nil, err
	}
	if s, ok := f.servers[identifier]; ok && s.UserPoolID == poolID {
		return s, nil
	}
	return nil, notFound("resource server")
}

func (f *fakeCognito) DeleteResourceServer(ctx context.Context, poolID, identifier string) error {
	if err := f.record("DeleteResourceServer"); err != nil {
		return err
	}
	if _, ok := f.servers[identifier]; !ok {
		return notFound("resource server")
	}
	delete(f.servers, identifier)
	return nil
}

func (f *fakeCognito) CreateUserPoolClient(ctx context.Context, in *CreateUserPoolClientInput) (*UserPoolClient, error) {
	if err := f.record("CreateUserPoolClient"); err != nil {
		return nil, err
	}
	f.seq++
	client := &UserPoolClient{
		UserPoolID:                      in.UserPoolID,
		ClientID:                        fmt.Sprintf("client%d", f.seq),
		ClientName:                      in.ClientName,
		AllowedOAuthFlows:               in.AllowedOAuthFlows,
		AllowedOAuthFlowsUserPoolClient: len(in.AllowedOAuthFlows) > 0,
		AllowedOAuthScopes:              in.AllowedOAuthScopes,
		CallbackURLs:                    in.CallbackURLs,
		LogoutURLs:                      in.LogoutURLs,
	}
	f.clients[client.ClientID] = client
	return client, nil
}

func (f *fakeCognito) DescribeUserPoolClient(ctx context.Context, poolID, clientID string) (*UserPoolClient, error) {
	if err := f.record("DescribeUserPoolClient"); err != nil {
		return nil, err
	}
	if c, ok := f.clients[clientID]; ok {
		return c, nil
	}
	return nil, notFound("client")
}

func (f *fakeCognito) DeleteUserPoolClient(ctx context.Context, poolID, clientID string) error {
	if err := f.record("DeleteUserPoolClient"); err != nil {
		return err
	}
	if _, ok := f.clients[clientID]; !ok {
		return notFound("client")
	}
	delete(f.clients, clientID)
	return nil
}

func (f *fakeCognito) CreateUserPoolDomain(ctx context.Context, in *CreateUserPoolDomainInput) (*UserPoolDomain, error) {
	if err := f.record("CreateUserPoolDomain"); err != nil {
		return nil, err
	}
	domain := &UserPoolDomain{Domain: in.Domain, UserPoolID: in.UserPoolID, Status: "CREATING", CloudFrontDomain: "d111.cloudfront.net"}
	f.domains[in.Domain] = domain
	return domain, nil
}

func (f *fakeCognito) DescribeUserPoolDomain(ctx context.Context, domain string) (*UserPoolDomain, error) {
	if err := f.record("DescribeUserPoolDomain"); err != nil {
		return nil, err
	}
	if d, ok := f.domains[domain]; ok {
		return d, nil
	}
	return nil, stack.ErrNotFound("cognito:user-pool-domain", domain)
}

func (f *fakeCognito) DeleteUserPoolDomain(ctx context.Context, poolID, domain string) error {
	if err := f.record("DeleteUserPoolDomain"); err != nil {
		return err
	}
	if _, ok := f.domains[domain]; !ok {
		return notFound("domain")
	}
	delete(f.domains, domain)
	return nil
}

func (f *fakeCognito) empty() bool {
	return len(f.pools)+len(f.servers)+len(f.clients)+len(f.domains) == 0
}

type fakeSTS struct {
	err error
}

func (f fakeSTS) GetCallerIdentity(ctx context.Context) (*CallerIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &CallerIdentity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/dev", UserID: "AIDA"}, nil
}

func testStack() *stack.Stack {
	return stack.Assemble(stack.Config{
		UserpoolName:             "P",
		ScopeName:                "S",
		ResourceServerName:       "R",
		ResourceServerIdentifier: "id1",
		ClientName:               "C",
		DomainPrefix:             "pfx",
	})
}

func TestApplyCreatesInOrder(t *testing.T) {
	fake := newFakeCognito()
	p := New(WithCognitoClient(fake), WithRegion("us-east-1"))

	outputs, err := p.Apply(context.Background(), testStack(), stack.DeployOptions{Tags: map[string]string{"env": "dev"}})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CreateUserPool",
		"CreateResourceServer",
		"CreateUserPoolClient",
		"CreateUserPoolDomain",
	}, fake.calls)

	poolID := outputs.Ref.ResourceIDs[stack.ResourceUserPoolID]
	require.NotEmpty(t, poolID)
	assert.Equal(t, map[string]string{
		"userpoolId":    poolID,
		"reactClientId": outputs.Ref.ResourceIDs[stack.ResourceClientID],
		"domain":        "pfx",
		"scopeName":     "id1/S",
	}, outputs.Values)
	assert.Equal(t, outputs.Values, outputs.Ref.Outputs)
	assert.Equal(t, "us-east-1", outputs.Ref.Region)
	assert.Equal(t, ProviderName, outputs.Ref.Provider)
	assert.True(t, outputs.Ref.Owned)
	assert.Equal(t, "d111.cloudfront.net", outputs.Ref.ResourceIDs[stack.ResourceDomainCloudFrontEndpoint])
	assert.Contains(t, outputs.Instructions, "Hosted UI: https://pfx.auth.us-east-1.amazoncognito.com")

	client := fake.clients[outputs.Values["reactClientId"]]
	require.NotNil(t, client)
	assert.Equal(t, poolID, client.UserPoolID)
	assert.Equal(t, []string{"code"}, client.AllowedOAuthFlows)
	assert.Equal(t, []string{"email", "openid", "profile", "id1/S"}, client.AllowedOAuthScopes)
	assert.Equal(t, []string{stack.CallbackURL}, client.CallbackURLs)

	server := fake.servers["id1"]
	require.NotNil(t, server)
	assert.Equal(t, []Scope{{Name: "S", Description: stack.ScopeDescription}}, server.Scopes)

	require.NotNil(t, fake.poolInput)
	assert.True(t, fake.poolInput.AdminCreateUserOnly)
	assert.Equal(t, []string{"verified_phone_number", "verified_email"}, fake.poolInput.RecoveryMechanisms)
	assert.Equal(t, "dev", fake.poolInput.Tags["env"])
}

func TestApplyUsesPoolSettingsFromStack(t *testing.T) {
	s := testStack()
	s.UserPool().AdminCreateUserOnly = false
	s.UserPool().RecoveryMechanisms = []stack.RecoveryMechanism{stack.RecoveryVerifiedEmail}

	fake := newFakeCognito()
	_, err := New(WithCognitoClient(fake)).Apply(context.Background(), s, stack.DeployOptions{})
	require.NoError(t, err)

	assert.False(t, fake.poolInput.AdminCreateUserOnly)
	assert.Equal(t, []string{"verified_email"}, fake.poolInput.RecoveryMechanisms)

	props := stack.Synthesize(s).Resources["Pool"].Properties
	assert.Equal(t, map[string]interface{}{"AllowAdminCreateUserOnly": false}, props["AdminCreateUserConfig"])
}

func TestApplyDryRun(t *testing.T) {
	fake := newFakeCognito()
	p := New(WithCognitoClient(fake))

	outputs, err := p.Apply(context.Background(), testStack(), stack.DeployOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, fake.calls)

	require.NotNil(t, outputs.Plan)
	require.Len(t, outputs.Plan.Actions, 5)
	assert.Equal(t, "declare", outputs.Plan.Actions[1].Operation)
	assert.Equal(t, string(stack.KindUserPoolDomain), outputs.Plan.Actions[4].ResourceType)
	assert.Equal(t, []string{"email", "openid", "profile", "id1/S"}, outputs.Plan.Actions[3].Details["oauth_scopes"])
	assert.Equal(t, outputs.Plan.Summary, outputs.Values["plan"])
}

func TestApplyDryRunWithoutClient(t *testing.T) {
	outputs, err := New().Apply(context.Background(), testStack(), stack.DeployOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, outputs.Plan.Actions, 5)
}

func TestApplyWithoutClient(t *testing.T) {
	_, err := New().Apply(context.Background(), testStack(), stack.DeployOptions{})
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryValidation))
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	fake := newFakeCognito()
	fake.failOn = "CreateUserPoolDomain"
	fake.failErr = &smithy.GenericAPIError{Code: "InvalidParameterException", Message: "Domain already associated with another user pool."}
	p := New(WithCognitoClient(fake))

	_, err := p.Apply(context.Background(), testStack(), stack.DeployOptions{})
	require.Error(t, err)

	var rbErr *stack.RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.Empty(t, rbErr.RollbackErrors)
	assert.Len(t, rbErr.CleanedResources, 3)
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryConflict))

	assert.Equal(t, []string{
		"CreateUserPool",
		"CreateResourceServer",
		"CreateUserPoolClient",
		"CreateUserPoolDomain",
		"DeleteUserPoolClient",
		"DeleteResourceServer",
		"DeleteUserPool",
	}, fake.calls)
	assert.True(t, fake.empty())
}

func TestApplyFirstStepFailureNeedsNoRollback(t *testing.T) {
	fake := newFakeCognito()
	fake.failOn = "CreateUserPool"
	p := New(WithCognitoClient(fake))

	_, err := p.Apply(context.Background(), testStack(), stack.DeployOptions{})
	require.Error(t, err)

	var rbErr *stack.RollbackError
	assert.False(t, errors.As(err, &rbErr))
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryValidation))
	assert.Equal(t, []string{"CreateUserPool"}, fake.calls)
}

func TestApplyReportsOrphans(t *testing.T) {
	fake := newFakeCognito()
	fake.failOn = "CreateUserPoolClient"
	p := New(WithCognitoClient(&failingDelete{fakeCognito: fake}))

	_, err := p.Apply(context.Background(), testStack(), stack.DeployOptions{})
	var rbErr *stack.RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.Len(t, rbErr.RollbackErrors, 1)
	assert.Len(t, rbErr.OrphanedResources, 1)
	assert.Contains(t, rbErr.OrphanedResources[0], string(stack.KindUserPool))
	assert.Contains(t, err.Error(), "rollback failed after")
}

type failingDelete struct {
	*fakeCognito
}

func (f *failingDelete) DeleteUserPool(ctx context.Context, poolID string) error {
	f.calls = append(f.calls, "DeleteUserPool")
	return &smithy.GenericAPIError{Code: "InvalidParameterException", Message: "pool has domain"}
}

func TestApplyCancelledContext(t *testing.T) {
	fake := newFakeCognito()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithCognitoClient(fake)).Apply(ctx, testStack(), stack.DeployOptions{})
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryTimeout))
	assert.Empty(t, fake.calls)
}

// interruptedCognito cancels the deploy context while the client is being
// created. Its deletes fail on a cancelled context like the SDK does.
type interruptedCognito struct {
	*fakeCognito
	cancel context.CancelFunc
}

func (f *interruptedCognito) CreateUserPoolClient(ctx context.Context, in *CreateUserPoolClientInput) (*UserPoolClient, error) {
	f.cancel()
	return nil, ctx.Err()
}

func (f *interruptedCognito) DeleteResourceServer(ctx context.Context, poolID, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fakeCognito.DeleteResourceServer(ctx, poolID, identifier)
}

func (f *interruptedCognito) DeleteUserPool(ctx context.Context, poolID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fakeCognito.DeleteUserPool(ctx, poolID)
}

func TestApplyRollsBackAfterInterrupt(t *testing.T) {
	fake := newFakeCognito()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := New(WithCognitoClient(&interruptedCognito{fakeCognito: fake, cancel: cancel})).
		Apply(ctx, testStack(), stack.DeployOptions{})
	require.ErrorIs(t, err, context.Canceled)

	var rbErr *stack.RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.Empty(t, rbErr.OrphanedResources)
	assert.Len(t, rbErr.CleanedResources, 2)
	assert.True(t, fake.empty())
}

func deploy(t *testing.T, fake *fakeCognito) stack.DeploymentRef {
	t.Helper()
	outputs, err := New(WithCognitoClient(fake), WithRegion("us-east-1")).
		Apply(context.Background(), testStack(), stack.DeployOptions{})
	require.NoError(t, err)
	fake.calls = nil
	return outputs.Ref
}

func TestDestroyReverseOrder(t *testing.T) {
	fake := newFakeCognito()
	ref := deploy(t, fake)

	require.NoError(t, New(WithCognitoClient(fake)).Destroy(context.Background(), ref, stack.DestroyOptions{}))
	assert.Equal(t, []string{
		"DeleteUserPoolDomain",
		"DeleteUserPoolClient",
		"DeleteResourceServer",
		"DeleteUserPool",
	}, fake.calls)
	assert.True(t, fake.empty())
}

func TestDestroyIsIdempotent(t *testing.T) {
	fake := newFakeCognito()
	ref := deploy(t, fake)
	p := New(WithCognitoClient(fake))

	require.NoError(t, p.Destroy(context.Background(), ref, stack.DestroyOptions{}))
	require.NoError(t, p.Destroy(context.Background(), ref, stack.DestroyOptions{}))
}

func TestDestroyDryRun(t *testing.T) {
	fake := newFakeCognito()
	ref := deploy(t, fake)

	require.NoError(t, New(WithCognitoClient(fake)).Destroy(context.Background(), ref, stack.DestroyOptions{DryRun: true}))
	assert.Empty(t, fake.calls)
	assert.False(t, fake.empty())
}

func TestDestroyStopsOnError(t *testing.T) {
	fake := newFakeCognito()
	ref := deploy(t, fake)
	fake.failOn = "DeleteUserPoolClient"
	fake.failErr = &smithy.GenericAPIError{Code: "NotAuthorizedException", Message: "no"}

	err := New(WithCognitoClient(fake)).Destroy(context.Background(), ref, stack.DestroyOptions{})
	require.Error(t, err)
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryPermission))
	assert.Equal(t, []string{"DeleteUserPoolDomain", "DeleteUserPoolClient"}, fake.calls)
}

func TestDestroyRequiresPoolID(t *testing.T) {
	err := New(WithCognitoClient(newFakeCognito())).Destroy(context.Background(), stack.DeploymentRef{ID: "x"}, stack.DestroyOptions{})
	assert.True(t, stack.IsCategory(err, stack.ErrCategoryValidation))
}

func TestHostedUIURL(t *testing.T) {
	assert.Equal(t, "https://auth-demo.auth.eu-west-1.amazoncognito.com", HostedUIURL("auth-demo", "eu-west-1"))
}
