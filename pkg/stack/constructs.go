package stack

import (
	"fmt"
	"strings"
)

// Kind identifies a construct type. Provisioned kinds use their
// CloudFormation type names.
type Kind string

const (
	KindUserPool            Kind = "AWS::Cognito::UserPool"
	KindResourceServerScope Kind = "ResourceServerScope"
	KindResourceServer      Kind = "AWS::Cognito::UserPoolResourceServer"
	KindUserPoolClient      Kind = "AWS::Cognito::UserPoolClient"
	KindUserPoolDomain      Kind = "AWS::Cognito::UserPoolDomain"
)

// Construct is a single declarative request in a Stack.
type Construct interface {
	// Path is the construct path within the stack, e.g. "Pool/ResourceServer".
	Path() string

	// Kind returns the construct type.
	Kind() Kind

	// Dependencies returns the constructs this one consumes.
	Dependencies() []Construct
}

// LogicalID derives the template logical ID from a construct path.
func LogicalID(c Construct) string {
	var b strings.Builder
	for _, r := range c.Path() {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UserPool is a managed directory of end-user identities.
type UserPool struct {
	id   string
	Name string

	// AdminCreateUserOnly disables self sign-up.
	AdminCreateUserOnly bool

	// RecoveryMechanisms lists account recovery options, highest priority first.
	RecoveryMechanisms []RecoveryMechanism
}

// RecoveryMechanism is an account recovery option of a user pool.
type RecoveryMechanism string

const (
	RecoveryVerifiedPhone RecoveryMechanism = "verified_phone_number"
	RecoveryVerifiedEmail RecoveryMechanism = "verified_email"
)

// DefaultRecoveryMechanisms is the recovery order a new pool gets: phone
// first, then email.
var DefaultRecoveryMechanisms = []RecoveryMechanism{RecoveryVerifiedPhone, RecoveryVerifiedEmail}

// RecoveryNames returns the recovery mechanism names in priority order.
func (p *UserPool) RecoveryNames() []string {
	names := make([]string, 0, len(p.RecoveryMechanisms))
	for _, m := range p.RecoveryMechanisms {
		names = append(names, string(m))
	}
	return names
}

func (p *UserPool) Path() string              { return p.id }
func (p *UserPool) Kind() Kind                { return KindUserPool }
func (p *UserPool) Dependencies() []Construct { return nil }

// ResourceServerScope is a custom scope exposed by a resource server. It has
// no physical resource of its own.
type ResourceServerScope struct {
	ScopeName        string
	ScopeDescription string
}

func (s *ResourceServerScope) Path() string              { return "Scope/" + s.ScopeName }
func (s *ResourceServerScope) Kind() Kind                { return KindResourceServerScope }
func (s *ResourceServerScope) Dependencies() []Construct { return nil }

// ResourceServer is a named API surface that scopes are defined against.
type ResourceServer struct {
	id         string
	Pool       *UserPool
	Name       string
	Identifier string
	Scopes     []*ResourceServerScope
}

func (r *ResourceServer) Path() string { return r.Pool.Path() + "/" + r.id }
func (r *ResourceServer) Kind() Kind   { return KindResourceServer }

func (r *ResourceServer) Dependencies() []Construct {
	deps := []Construct{r.Pool}
	for _, s := range r.Scopes {
		deps = append(deps, s)
	}
	return deps
}

// OAuthFlows selects the OAuth grant types a client may use.
type OAuthFlows struct {
	AuthorizationCodeGrant bool `json:"authorizationCodeGrant"`
	ImplicitCodeGrant      bool `json:"implicitCodeGrant"`
	ClientCredentials      bool `json:"clientCredentials"`
}

// Names returns the Cognito flow names enabled by f.
func (f OAuthFlows) Names() []string {
	var names []string
	if f.AuthorizationCodeGrant {
		names = append(names, "code")
	}
	if f.ImplicitCodeGrant {
		names = append(names, "implicit")
	}
	if f.ClientCredentials {
		names = append(names, "client_credentials")
	}
	return names
}

// OAuthScope is a scope granted to a client. Custom scopes reference the
// resource server and scope that define them.
type OAuthScope struct {
	name   string
	server *ResourceServer
	scope  *ResourceServerScope
}

// Standard identity scopes.
var (
	OAuthScopeEmail   = OAuthScope{name: "email"}
	OAuthScopeOpenID  = OAuthScope{name: "openid"}
	OAuthScopeProfile = OAuthScope{name: "profile"}
)

// CustomScope returns the scope scope as exposed by server.
func CustomScope(server *ResourceServer, scope *ResourceServerScope) OAuthScope {
	return OAuthScope{server: server, scope: scope}
}

// IsCustom reports whether s is defined by a resource server.
func (s OAuthScope) IsCustom() bool {
	return s.server != nil
}

// ScopeName returns the fully qualified scope name, "<identifier>/<scope>"
// for custom scopes.
func (s OAuthScope) ScopeName() string {
	if s.server == nil {
		return s.name
	}
	return s.server.Identifier + "/" + s.scope.ScopeName
}

// Expr returns the scope name as an expression over the resource server
// reference.
func (s OAuthScope) Expr() Expr {
	if s.server == nil {
		return Literal(s.name)
	}
	return Join{Sep: "", Parts: []Expr{Ref{Target: s.server}, Literal("/" + s.scope.ScopeName)}}
}

// UserPoolClient is an OAuth client bound to a pool.
type UserPoolClient struct {
	id             string
	Pool           *UserPool
	Name           string
	GenerateSecret bool
	CallbackURLs   []string
	LogoutURLs     []string
	Flows          OAuthFlows
	Scopes         []OAuthScope
}

func (c *UserPoolClient) Path() string { return c.Pool.Path() + "/" + c.id }
func (c *UserPoolClient) Kind() Kind   { return KindUserPoolClient }

func (c *UserPoolClient) Dependencies() []Construct {
	deps := []Construct{c.Pool}
	for _, s := range c.Scopes {
		if s.IsCustom() {
			deps = append(deps, s.server)
		}
	}
	return deps
}

// ScopeNames returns the fully qualified names of the client's scopes.
func (c *UserPoolClient) ScopeNames() []string {
	names := make([]string, 0, len(c.Scopes))
	for _, s := range c.Scopes {
		names = append(names, s.ScopeName())
	}
	return names
}

// UserPoolDomain is the hosted login domain of a pool.
type UserPoolDomain struct {
	id           string
	Pool         *UserPool
	DomainPrefix string
}

func (d *UserPoolDomain) Path() string              { return d.Pool.Path() + "/" + d.id }
func (d *UserPoolDomain) Kind() Kind                { return KindUserPoolDomain }
func (d *UserPoolDomain) Dependencies() []Construct { return []Construct{d.Pool} }

// Expr is an output value expression.
type Expr interface {
	isExpr()
}

// Ref resolves to the physical ID of a construct.
type Ref struct {
	Target Construct
}

// Literal is a constant string.
type Literal string

// Join concatenates its parts with Sep.
type Join struct {
	Sep   string
	Parts []Expr
}

func (Ref) isExpr()     {}
func (Literal) isExpr() {}
func (Join) isExpr()    {}

// Resolve evaluates e using physical IDs keyed by construct path.
func Resolve(e Expr, physical map[string]string) (string, error) {
	switch v := e.(type) {
	case Literal:
		return string(v), nil
	case Ref:
		id, ok := physical[v.Target.Path()]
		if !ok || id == "" {
			return "", ErrNotFound("physical id", v.Target.Path())
		}
		return id, nil
	case Join:
		parts := make([]string, 0, len(v.Parts))
		for _, p := range v.Parts {
			s, err := Resolve(p, physical)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, v.Sep), nil
	default:
		return "", ErrInternal(fmt.Sprintf("unsupported expression %T", e))
	}
}

// Output is a named stack output.
type Output struct {
	Name  string
	Value Expr
}
