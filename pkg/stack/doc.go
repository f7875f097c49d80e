// Package stack declares and manages a Cognito identity stack.
//
// # Overview
//
// A stack is a user pool, a resource server exposing one custom scope, an
// OAuth client bound to the pool and scope, and a hosted login domain. The
// stack is assembled from a flat Config, synthesized into a CloudFormation
// template, or applied directly against the Cognito API by a Provisioner.
//
// # Core Concepts
//
// ## Constructs
//
// Assemble returns a Stack holding its constructs in construction order:
//   - UserPool
//   - ResourceServerScope
//   - ResourceServer (bound to the scope)
//   - UserPoolClient (bound to the pool and scope)
//   - UserPoolDomain (bound to the pool)
//
// ## Outputs
//
// Each stack publishes four outputs: userpoolId, reactClientId, domain and
// scopeName. Output values are expressions (Ref, Literal, Join) that resolve
// against the physical IDs returned when the stack is provisioned.
//
// ## Deployments
//
// A DeploymentRef is a stable reference to a provisioned stack instance. The
// StateStore tracks deployments and ownership so that only stacks created by
// this tool are destroyed by default.
//
// # Usage
//
//	cfg, err := stack.LoadConfig("config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := stack.Assemble(cfg)
//
//	tmpl := stack.Synthesize(s)
//	data, _ := tmpl.JSON()
//	fmt.Println(string(data))
//
//	outputs, err := manager.Deploy(ctx, s, stack.DeployOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(outputs.Values[stack.OutputUserPoolID])
package stack
