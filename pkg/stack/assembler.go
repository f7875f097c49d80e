package stack

// Fixed client settings.
const (
	CallbackURL      = "http://localhost:3000/callback"
	LogoutURL        = "http://localhost:3000"
	ScopeDescription = "API access"
)

// Construct IDs.
const (
	poolID           = "Pool"
	resourceServerID = "ResourceServer"
	clientID         = "react-client"
	domainID         = "userpool-domain"
)

// Assemble declares the identity stack for cfg. Values are passed through
// unchecked; the platform rejects names it does not accept.
func Assemble(cfg Config) *Stack {
	return AssembleNamed(DefaultStackName, cfg)
}

// AssembleNamed is Assemble with an explicit stack name.
func AssembleNamed(name string, cfg Config) *Stack {
	s := NewStack(name)
	s.config = cfg
	s.Description = "Cognito user pool with OAuth client, resource server and hosted domain"

	pool := s.AddUserPool(poolID, cfg.UserpoolName)

	apiScope := s.AddScope(cfg.ScopeName, ScopeDescription)

	server := s.AddResourceServer(pool, resourceServerID, cfg.ResourceServerName, cfg.ResourceServerIdentifier, apiScope)

	custom := CustomScope(server, apiScope)
	client := s.AddClient(pool, clientID, ClientOptions{
		Name:           cfg.ClientName,
		GenerateSecret: false,
		CallbackURLs:   []string{CallbackURL},
		LogoutURLs:     []string{LogoutURL},
		Flows: OAuthFlows{
			AuthorizationCodeGrant: true,
			ClientCredentials:      false,
			ImplicitCodeGrant:      false,
		},
		Scopes: []OAuthScope{
			OAuthScopeEmail,
			OAuthScopeOpenID,
			OAuthScopeProfile,
			custom,
		},
	})

	domain := s.AddDomain(pool, domainID, cfg.DomainPrefix)

	s.AddOutput(OutputUserPoolID, Ref{Target: pool})
	s.AddOutput(OutputClientID, Ref{Target: client})
	s.AddOutput(OutputDomain, Ref{Target: domain})
	s.AddOutput(OutputScopeName, custom.Expr())

	return s
}
