package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// CognitoAPI is the subset of the SDK client used by SDKClient.
type CognitoAPI interface {
	CreateUserPool(ctx context.Context, params *cognitoidentityprovider.CreateUserPoolInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateUserPoolOutput, error)
	DescribeUserPool(ctx context.Context, params *cognitoidentityprovider.DescribeUserPoolInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DescribeUserPoolOutput, error)
	DeleteUserPool(ctx context.Context, params *cognitoidentityprovider.DeleteUserPoolInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DeleteUserPoolOutput, error)
	CreateResourceServer(ctx context.Context, params *cognitoidentityprovider.CreateResourceServerInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateResourceServerOutput, error)
	DescribeResourceServer(ctx context.Context, params *cognitoidentityprovider.DescribeResourceServerInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DescribeResourceServerOutput, error)
	DeleteResourceServer(ctx context.Context, params *cognitoidentityprovider.DeleteResourceServerInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DeleteResourceServerOutput, error)
	CreateUserPoolClient(ctx context.Context, params *cognitoidentityprovider.CreateUserPoolClientInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateUserPoolClientOutput, error)
	DescribeUserPoolClient(ctx context.Context, params *cognitoidentityprovider.DescribeUserPoolClientInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DescribeUserPoolClientOutput, error)
	DeleteUserPoolClient(ctx context.Context, params *cognitoidentityprovider.DeleteUserPoolClientInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DeleteUserPoolClientOutput, error)
	CreateUserPoolDomain(ctx context.Context, params *cognitoidentityprovider.CreateUserPoolDomainInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.CreateUserPoolDomainOutput, error)
	DescribeUserPoolDomain(ctx context.Context, params *cognitoidentityprovider.DescribeUserPoolDomainInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DescribeUserPoolDomainOutput, error)
	DeleteUserPoolDomain(ctx context.Context, params *cognitoidentityprovider.DeleteUserPoolDomainInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.DeleteUserPoolDomainOutput, error)
}

// STSAPI is the subset of the SDK STS client used by SDKSTSClient.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// SDKClient implements CognitoClient on top of aws-sdk-go-v2.
type SDKClient struct {
	api CognitoAPI
}

// NewSDKClient wraps an SDK Cognito client.
func NewSDKClient(api CognitoAPI) *SDKClient {
	return &SDKClient{api: api}
}

// SDKSTSClient implements STSClient on top of aws-sdk-go-v2.
type SDKSTSClient struct {
	api STSAPI
}

// NewSDKSTSClient wraps an SDK STS client.
func NewSDKSTSClient(api STSAPI) *SDKSTSClient {
	return &SDKSTSClient{api: api}
}

// LoadOptions selects the AWS region and shared config profile.
type LoadOptions struct {
	Region  string
	Profile string
}

// NewFromEnvironment builds a Provider from the default AWS credential chain.
func NewFromEnvironment(ctx context.Context, lo LoadOptions, opts ...ProviderOption) (*Provider, error) {
	var loadOpts []func(*config.LoadOptions) error
	if lo.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(lo.Region))
	}
	if lo.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(lo.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, stack.ErrAuth("failed to load AWS configuration").WithCause(err).WithProvider(ProviderName)
	}
	if cfg.Region == "" {
		return nil, stack.ErrValidation("AWS region not configured").
			WithProvider(ProviderName).
			WithDetail("hint", "Set --region or AWS_REGION")
	}

	base := []ProviderOption{
		WithCognitoClient(NewSDKClient(cognitoidentityprovider.NewFromConfig(cfg))),
		WithSTSClient(NewSDKSTSClient(sts.NewFromConfig(cfg))),
		WithRegion(cfg.Region),
	}
	return New(append(base, opts...)...), nil
}

// CreateUserPool implements CognitoClient.
func (c *SDKClient) CreateUserPool(ctx context.Context, input *CreateUserPoolInput) (*UserPool, error) {
	req := &cognitoidentityprovider.CreateUserPoolInput{
		PoolName:     awssdk.String(input.PoolName),
		UserPoolTags: input.Tags,
		AdminCreateUserConfig: &types.AdminCreateUserConfigType{
			AllowAdminCreateUserOnly: input.AdminCreateUserOnly,
		},
	}
	if len(input.RecoveryMechanisms) > 0 {
		mechanisms := make([]types.RecoveryOptionType, 0, len(input.RecoveryMechanisms))
		for i, name := range input.RecoveryMechanisms {
			mechanisms = append(mechanisms, types.RecoveryOptionType{
				Name:     types.RecoveryOptionNameType(name),
				Priority: awssdk.Int32(int32(i + 1)),
			})
		}
		req.AccountRecoverySetting = &types.AccountRecoverySettingType{RecoveryMechanisms: mechanisms}
	}
	out, err := c.api.CreateUserPool(ctx, req)
	if err != nil {
		return nil, err
	}
	return convertUserPool(out.UserPool), nil
}

// DescribeUserPool implements CognitoClient.
func (c *SDKClient) DescribeUserPool(ctx context.Context, poolID string) (*UserPool, error) {
	out, err := c.api.DescribeUserPool(ctx, &cognitoidentityprovider.DescribeUserPoolInput{
		UserPoolId: awssdk.String(poolID),
	})
	if err != nil {
		return nil, err
	}
	if out.UserPool == nil {
		return nil, stack.ErrNotFound("cognito:user-pool", poolID)
	}
	return convertUserPool(out.UserPool), nil
}

// DeleteUserPool implements CognitoClient.
func (c *SDKClient) DeleteUserPool(ctx context.Context, poolID string) error {
	_, err := c.api.DeleteUserPool(ctx, &cognitoidentityprovider.DeleteUserPoolInput{
		UserPoolId: awssdk.String(poolID),
	})
	return err
}

// CreateResourceServer implements CognitoClient.
func (c *SDKClient) CreateResourceServer(ctx context.Context, input *CreateResourceServerInput) (*ResourceServer, error) {
	scopes := make([]types.ResourceServerScopeType, 0, len(input.Scopes))
	for _, s := range input.Scopes {
		scopes = append(scopes, types.ResourceServerScopeType{
			ScopeName:        awssdk.String(s.Name),
			ScopeDescription: awssdk.String(s.Description),
		})
	}
	out, err := c.api.CreateResourceServer(ctx, &cognitoidentityprovider.CreateResourceServerInput{
		UserPoolId: awssdk.String(input.UserPoolID),
		Identifier: awssdk.String(input.Identifier),
		Name:       awssdk.String(input.Name),
		Scopes:     scopes,
	})
	if err != nil {
		return nil, err
	}
	return convertResourceServer(out.ResourceServer), nil
}

// DescribeResourceServer implements CognitoClient.
func (c *SDKClient) DescribeResourceServer(ctx context.Context, poolID, identifier string) (*ResourceServer, error) {
	out, err := c.api.DescribeResourceServer(ctx, &cognitoidentityprovider.DescribeResourceServerInput{
		UserPoolId: awssdk.String(poolID),
		Identifier: awssdk.String(identifier),
	})
	if err != nil {
		return nil, err
	}
	if out.ResourceServer == nil {
		return nil, stack.ErrNotFound("cognito:resource-server", identifier)
	}
	return convertResourceServer(out.ResourceServer), nil
}

// DeleteResourceServer implements CognitoClient.
func (c *SDKClient) DeleteResourceServer(ctx context.Context, poolID, identifier string) error {
	_, err := c.api.DeleteResourceServer(ctx, &cognitoidentityprovider.DeleteResourceServerInput{
		UserPoolId: awssdk.String(poolID),
		Identifier: awssdk.String(identifier),
	})
	return err
}

// CreateUserPoolClient implements CognitoClient.
func (c *SDKClient) CreateUserPoolClient(ctx context.Context, input *CreateUserPoolClientInput) (*UserPoolClient, error) {
	flows := make([]types.OAuthFlowType, 0, len(input.AllowedOAuthFlows))
	for _, f := range input.AllowedOAuthFlows {
		flows = append(flows, types.OAuthFlowType(f))
	}
	out, err := c.api.CreateUserPoolClient(ctx, &cognitoidentityprovider.CreateUserPoolClientInput{
		UserPoolId:                      awssdk.String(input.UserPoolID),
		ClientName:                      awssdk.String(input.ClientName),
		GenerateSecret:                  input.GenerateSecret,
		CallbackURLs:                    input.CallbackURLs,
		LogoutURLs:                      input.LogoutURLs,
		AllowedOAuthFlows:               flows,
		AllowedOAuthFlowsUserPoolClient: len(flows) > 0,
		AllowedOAuthScopes:              input.AllowedOAuthScopes,
		SupportedIdentityProviders:      input.SupportedIdentityProviders,
	})
	if err != nil {
		return nil, err
	}
	return convertClient(out.UserPoolClient), nil
}

// DescribeUserPoolClient implements CognitoClient.
func (c *SDKClient) DescribeUserPoolClient(ctx context.Context, poolID, clientID string) (*UserPoolClient, error) {
	out, err := c.api.DescribeUserPoolClient(ctx, &cognitoidentityprovider.DescribeUserPoolClientInput{
		UserPoolId: awssdk.String(poolID),
		ClientId:   awssdk.String(clientID),
	})
	if err != nil {
		return nil, err
	}
	if out.UserPoolClient == nil {
		return nil, stack.ErrNotFound("cognito:user-pool-client", clientID)
	}
	return convertClient(out.UserPoolClient), nil
}

// DeleteUserPoolClient implements CognitoClient.
func (c *SDKClient) DeleteUserPoolClient(ctx context.Context, poolID, clientID string) error {
	_, err := c.api.DeleteUserPoolClient(ctx, &cognitoidentityprovider.DeleteUserPoolClientInput{
		UserPoolId: awssdk.String(poolID),
		ClientId:   awssdk.String(clientID),
	})
	return err
}

// CreateUserPoolDomain implements CognitoClient.
func (c *SDKClient) CreateUserPoolDomain(ctx context.Context, input *CreateUserPoolDomainInput) (*UserPoolDomain, error) {
	out, err := c.api.CreateUserPoolDomain(ctx, &cognitoidentityprovider.CreateUserPoolDomainInput{
		UserPoolId: awssdk.String(input.UserPoolID),
		Domain:     awssdk.String(input.Domain),
	})
	if err != nil {
		return nil, err
	}
	return &UserPoolDomain{
		Domain:           input.Domain,
		UserPoolID:       input.UserPoolID,
		CloudFrontDomain: awssdk.ToString(out.CloudFrontDomain),
	}, nil
}

// DescribeUserPoolDomain implements CognitoClient. Cognito answers unknown
// domains with an empty description rather than an error.
func (c *SDKClient) DescribeUserPoolDomain(ctx context.Context, domain string) (*UserPoolDomain, error) {
	out, err := c.api.DescribeUserPoolDomain(ctx, &cognitoidentityprovider.DescribeUserPoolDomainInput{
		Domain: awssdk.String(domain),
	})
	if err != nil {
		return nil, err
	}
	d := out.DomainDescription
	if d == nil || awssdk.ToString(d.Domain) == "" {
		return nil, stack.ErrNotFound("cognito:user-pool-domain", domain)
	}
	return &UserPoolDomain{
		Domain:           awssdk.ToString(d.Domain),
		UserPoolID:       awssdk.ToString(d.UserPoolId),
		Status:           string(d.Status),
		CloudFrontDomain: awssdk.ToString(d.CloudFrontDistribution),
	}, nil
}

// DeleteUserPoolDomain implements CognitoClient.
func (c *SDKClient) DeleteUserPoolDomain(ctx context.Context, poolID, domain string) error {
	_, err := c.api.DeleteUserPoolDomain(ctx, &cognitoidentityprovider.DeleteUserPoolDomainInput{
		UserPoolId: awssdk.String(poolID),
		Domain:     awssdk.String(domain),
	})
	return err
}

// GetCallerIdentity implements STSClient.
func (c *SDKSTSClient) GetCallerIdentity(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, err
	}
	return &CallerIdentity{
		Account: awssdk.ToString(out.Account),
		ARN:     awssdk.ToString(out.Arn),
		UserID:  awssdk.ToString(out.UserId),
	}, nil
}

func convertUserPool(p *types.UserPoolType) *UserPool {
	if p == nil {
		return &UserPool{}
	}
	return &UserPool{
		ID:     awssdk.ToString(p.Id),
		ARN:    awssdk.ToString(p.Arn),
		Name:   awssdk.ToString(p.Name),
		Domain: awssdk.ToString(p.Domain),
	}
}

func convertResourceServer(r *types.ResourceServerType) *ResourceServer {
	if r == nil {
		return &ResourceServer{}
	}
	scopes := make([]Scope, 0, len(r.Scopes))
	for _, s := range r.Scopes {
		scopes = append(scopes, Scope{
			Name:        awssdk.ToString(s.ScopeName),
			Description: awssdk.ToString(s.ScopeDescription),
		})
	}
	return &ResourceServer{
		UserPoolID: awssdk.ToString(r.UserPoolId),
		Identifier: awssdk.ToString(r.Identifier),
		Name:       awssdk.ToString(r.Name),
		Scopes:     scopes,
	}
}

func convertClient(c *types.UserPoolClientType) *UserPoolClient {
	if c == nil {
		return &UserPoolClient{}
	}
	flows := make([]string, 0, len(c.AllowedOAuthFlows))
	for _, f := range c.AllowedOAuthFlows {
		flows = append(flows, string(f))
	}
	return &UserPoolClient{
		UserPoolID:                      awssdk.ToString(c.UserPoolId),
		ClientID:                        awssdk.ToString(c.ClientId),
		ClientName:                      awssdk.ToString(c.ClientName),
		AllowedOAuthFlows:               flows,
		AllowedOAuthFlowsUserPoolClient: awssdk.ToBool(c.AllowedOAuthFlowsUserPoolClient),
		AllowedOAuthScopes:              c.AllowedOAuthScopes,
		CallbackURLs:                    c.CallbackURLs,
		LogoutURLs:                      c.LogoutURLs,
	}
}
