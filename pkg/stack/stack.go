package stack

// DefaultStackName is the stack name used when none is configured.
const DefaultStackName = "CognitoStack"

// Output names published by every stack.
const (
	OutputUserPoolID = "userpoolId"
	OutputClientID   = "reactClientId"
	OutputDomain     = "domain"
	OutputScopeName  = "scopeName"
)

// OutputNames lists the stack outputs in publication order.
var OutputNames = []string{OutputUserPoolID, OutputClientID, OutputDomain, OutputScopeName}

// Stack is an ordered set of constructs and the outputs derived from them.
// Constructs appear in the order they were added, which is the order they
// must be provisioned in.
type Stack struct {
	Name        string
	Description string

	config     Config
	constructs []Construct
	outputs    []Output

	pool   *UserPool
	scope  *ResourceServerScope
	server *ResourceServer
	client *UserPoolClient
	domain *UserPoolDomain
}

// NewStack returns an empty stack.
func NewStack(name string) *Stack {
	if name == "" {
		name = DefaultStackName
	}
	return &Stack{Name: name}
}

func (s *Stack) add(c Construct) {
	s.constructs = append(s.constructs, c)
}

// Constructs returns the constructs in construction order.
func (s *Stack) Constructs() []Construct {
	out := make([]Construct, len(s.constructs))
	copy(out, s.constructs)
	return out
}

// Outputs returns the stack outputs in publication order.
func (s *Stack) Outputs() []Output {
	out := make([]Output, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Output returns the named output.
func (s *Stack) Output(name string) (Output, bool) {
	for _, o := range s.outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// Config returns the configuration the stack was assembled from.
func (s *Stack) Config() Config { return s.config }

func (s *Stack) UserPool() *UserPool                       { return s.pool }
func (s *Stack) ResourceServerScope() *ResourceServerScope { return s.scope }
func (s *Stack) ResourceServer() *ResourceServer           { return s.server }
func (s *Stack) Client() *UserPoolClient                   { return s.client }
func (s *Stack) Domain() *UserPoolDomain                   { return s.domain }

// AddUserPool declares the stack's user pool. Self sign-up is disabled and
// recovery follows DefaultRecoveryMechanisms.
func (s *Stack) AddUserPool(id, name string) *UserPool {
	s.pool = &UserPool{
		id:                  id,
		Name:                name,
		AdminCreateUserOnly: true,
		RecoveryMechanisms:  append([]RecoveryMechanism(nil), DefaultRecoveryMechanisms...),
	}
	s.add(s.pool)
	return s.pool
}

// AddScope declares a resource server scope.
func (s *Stack) AddScope(name, description string) *ResourceServerScope {
	s.scope = &ResourceServerScope{ScopeName: name, ScopeDescription: description}
	s.add(s.scope)
	return s.scope
}

// AddResourceServer declares a resource server on pool.
func (s *Stack) AddResourceServer(pool *UserPool, id, name, identifier string, scopes ...*ResourceServerScope) *ResourceServer {
	s.server = &ResourceServer{id: id, Pool: pool, Name: name, Identifier: identifier, Scopes: scopes}
	s.add(s.server)
	return s.server
}

// ClientOptions configures an OAuth client.
type ClientOptions struct {
	Name           string
	GenerateSecret bool
	CallbackURLs   []string
	LogoutURLs     []string
	Flows          OAuthFlows
	Scopes         []OAuthScope
}

// AddClient declares an OAuth client on pool.
func (s *Stack) AddClient(pool *UserPool, id string, opts ClientOptions) *UserPoolClient {
	s.client = &UserPoolClient{
		id:             id,
		Pool:           pool,
		Name:           opts.Name,
		GenerateSecret: opts.GenerateSecret,
		CallbackURLs:   opts.CallbackURLs,
		LogoutURLs:     opts.LogoutURLs,
		Flows:          opts.Flows,
		Scopes:         opts.Scopes,
	}
	s.add(s.client)
	return s.client
}

// AddDomain declares a Cognito-hosted domain on pool.
func (s *Stack) AddDomain(pool *UserPool, id, prefix string) *UserPoolDomain {
	s.domain = &UserPoolDomain{id: id, Pool: pool, DomainPrefix: prefix}
	s.add(s.domain)
	return s.domain
}

// AddOutput publishes a named output.
func (s *Stack) AddOutput(name string, value Expr) {
	s.outputs = append(s.outputs, Output{Name: name, Value: value})
}

// ResolveOutputs evaluates every output against physical IDs keyed by
// construct path.
func (s *Stack) ResolveOutputs(physical map[string]string) (map[string]string, error) {
	values := make(map[string]string, len(s.outputs))
	for _, o := range s.outputs {
		v, err := Resolve(o.Value, physical)
		if err != nil {
			return nil, ErrInternal("failed to resolve output " + o.Name).WithCause(err)
		}
		values[o.Name] = v
	}
	return values, nil
}
