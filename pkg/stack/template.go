package stack

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"
)

// TemplateFormatVersion is the CloudFormation template format version.
const TemplateFormatVersion = "2010-09-09"

// Template is a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                      `json:"AWSTemplateFormatVersion"`
	Description              string                      `json:"Description,omitempty"`
	Resources                map[string]TemplateResource `json:"Resources"`
	Outputs                  map[string]TemplateOutput   `json:"Outputs,omitempty"`
}

// TemplateResource is a single CloudFormation resource.
type TemplateResource struct {
	Type                string                 `json:"Type"`
	Properties          map[string]interface{} `json:"Properties"`
	DependsOn           []string               `json:"DependsOn,omitempty"`
	DeletionPolicy      string                 `json:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string                 `json:"UpdateReplacePolicy,omitempty"`
	Metadata            map[string]interface{} `json:"Metadata,omitempty"`
}

// TemplateOutput is a CloudFormation stack output.
type TemplateOutput struct {
	Value interface{} `json:"Value"`
}

// Synthesize renders s as a CloudFormation template.
func Synthesize(s *Stack) *Template {
	t := &Template{
		AWSTemplateFormatVersion: TemplateFormatVersion,
		Description:              s.Description,
		Resources:                make(map[string]TemplateResource),
		Outputs:                  make(map[string]TemplateOutput),
	}

	for _, c := range s.Constructs() {
		res, ok := synthesizeConstruct(c)
		if !ok {
			continue
		}
		res.Metadata = map[string]interface{}{
			"aws:cdk:path": s.Name + "/" + c.Path() + "/Resource",
		}
		t.Resources[LogicalID(c)] = res
	}

	for _, o := range s.Outputs() {
		t.Outputs[o.Name] = TemplateOutput{Value: renderExpr(o.Value)}
	}

	return t
}

func synthesizeConstruct(c Construct) (TemplateResource, bool) {
	switch v := c.(type) {
	case *UserPool:
		mechanisms := make([]interface{}, 0, len(v.RecoveryMechanisms))
		for i, m := range v.RecoveryMechanisms {
			mechanisms = append(mechanisms, map[string]interface{}{"Name": string(m), "Priority": i + 1})
		}
		props := map[string]interface{}{
			"UserPoolName": v.Name,
			"AdminCreateUserConfig": map[string]interface{}{
				"AllowAdminCreateUserOnly": v.AdminCreateUserOnly,
			},
		}
		if len(mechanisms) > 0 {
			props["AccountRecoverySetting"] = map[string]interface{}{"RecoveryMechanisms": mechanisms}
		}
		return TemplateResource{
			Type:                string(KindUserPool),
			Properties:          props,
			DeletionPolicy:      "Retain",
			UpdateReplacePolicy: "Retain",
		}, true

	case *ResourceServer:
		scopes := make([]interface{}, 0, len(v.Scopes))
		for _, s := range v.Scopes {
			scopes = append(scopes, map[string]interface{}{
				"ScopeName":        s.ScopeName,
				"ScopeDescription": s.ScopeDescription,
			})
		}
		return TemplateResource{
			Type: string(KindResourceServer),
			Properties: map[string]interface{}{
				"UserPoolId": renderExpr(Ref{Target: v.Pool}),
				"Identifier": v.Identifier,
				"Name":       v.Name,
				"Scopes":     scopes,
			},
		}, true

	case *UserPoolClient:
		scopes := make([]interface{}, 0, len(v.Scopes))
		for _, s := range v.Scopes {
			scopes = append(scopes, renderExpr(s.Expr()))
		}
		flows := make([]interface{}, 0, 3)
		for _, f := range v.Flows.Names() {
			flows = append(flows, f)
		}
		return TemplateResource{
			Type: string(KindUserPoolClient),
			Properties: map[string]interface{}{
				"UserPoolId":                      renderExpr(Ref{Target: v.Pool}),
				"ClientName":                      v.Name,
				"GenerateSecret":                  v.GenerateSecret,
				"AllowedOAuthFlows":               flows,
				"AllowedOAuthFlowsUserPoolClient": true,
				"AllowedOAuthScopes":              scopes,
				"CallbackURLs":                    toInterfaces(v.CallbackURLs),
				"LogoutURLs":                      toInterfaces(v.LogoutURLs),
				"SupportedIdentityProviders":      []interface{}{"COGNITO"},
			},
		}, true

	case *UserPoolDomain:
		return TemplateResource{
			Type: string(KindUserPoolDomain),
			Properties: map[string]interface{}{
				"Domain":     v.DomainPrefix,
				"UserPoolId": renderExpr(Ref{Target: v.Pool}),
			},
		}, true
	}
	return TemplateResource{}, false
}

func renderExpr(e Expr) interface{} {
	switch v := e.(type) {
	case Literal:
		return string(v)
	case Ref:
		return map[string]interface{}{"Ref": LogicalID(v.Target)}
	case Join:
		parts := make([]interface{}, 0, len(v.Parts))
		for _, p := range v.Parts {
			parts = append(parts, renderExpr(p))
		}
		return map[string]interface{}{"Fn::Join": []interface{}{v.Sep, parts}}
	default:
		panic(fmt.Sprintf("stack: unsupported expression %T", e))
	}
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// JSON renders the template as indented JSON.
func (t *Template) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, ErrInternal("failed to marshal template").WithCause(err)
	}
	return data, nil
}

// YAML renders the template as YAML.
func (t *Template) YAML() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, ErrInternal("failed to marshal template").WithCause(err)
	}
	out, err := yaml.JSONToYAML(data)
	if err != nil {
		return nil, ErrInternal("failed to convert template to YAML").WithCause(err)
	}
	return out, nil
}
