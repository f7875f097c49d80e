package stack

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

func TestSynthesizeResources(t *testing.T) {
	tmpl := Synthesize(Assemble(testConfig()))

	assert.Equal(t, TemplateFormatVersion, tmpl.AWSTemplateFormatVersion)
	require.Len(t, tmpl.Resources, 4)

	pool := tmpl.Resources["Pool"]
	assert.Equal(t, "AWS::Cognito::UserPool", pool.Type)
	assert.Equal(t, "P", pool.Properties["UserPoolName"])
	assert.Equal(t, "Retain", pool.DeletionPolicy)
	assert.Equal(t, "Retain", pool.UpdateReplacePolicy)
	assert.Equal(t, "CognitoStack/Pool/Resource", pool.Metadata["aws:cdk:path"])

	server := tmpl.Resources["PoolResourceServer"]
	assert.Equal(t, "AWS::Cognito::UserPoolResourceServer", server.Type)
	assert.Equal(t, "id1", server.Properties["Identifier"])
	assert.Equal(t, map[string]interface{}{"Ref": "Pool"}, server.Properties["UserPoolId"])

	client := tmpl.Resources["Poolreactclient"]
	assert.Equal(t, "AWS::Cognito::UserPoolClient", client.Type)
	assert.Equal(t, []interface{}{"code"}, client.Properties["AllowedOAuthFlows"])
	assert.Equal(t, true, client.Properties["AllowedOAuthFlowsUserPoolClient"])
	assert.Equal(t, false, client.Properties["GenerateSecret"])
	assert.Equal(t, []interface{}{"http://localhost:3000/callback"}, client.Properties["CallbackURLs"])

	domain := tmpl.Resources["Pooluserpooldomain"]
	assert.Equal(t, "AWS::Cognito::UserPoolDomain", domain.Type)
	assert.Equal(t, "pfx", domain.Properties["Domain"])
}

func TestSynthesizePoolDefaults(t *testing.T) {
	s := Assemble(testConfig())
	assert.True(t, s.UserPool().AdminCreateUserOnly)
	assert.Equal(t, []string{"verified_phone_number", "verified_email"}, s.UserPool().RecoveryNames())

	props := Synthesize(s).Resources["Pool"].Properties
	assert.Equal(t, map[string]interface{}{"AllowAdminCreateUserOnly": true}, props["AdminCreateUserConfig"])
	assert.Equal(t, map[string]interface{}{
		"RecoveryMechanisms": []interface{}{
			map[string]interface{}{"Name": "verified_phone_number", "Priority": 1},
			map[string]interface{}{"Name": "verified_email", "Priority": 2},
		},
	}, props["AccountRecoverySetting"])

	s.UserPool().RecoveryMechanisms = nil
	assert.NotContains(t, Synthesize(s).Resources["Pool"].Properties, "AccountRecoverySetting")
}

func TestSynthesizeOutputs(t *testing.T) {
	tmpl := Synthesize(Assemble(testConfig()))

	require.Len(t, tmpl.Outputs, 4)
	assert.Equal(t, map[string]interface{}{"Ref": "Pool"}, tmpl.Outputs["userpoolId"].Value)
	assert.Equal(t, map[string]interface{}{"Ref": "Poolreactclient"}, tmpl.Outputs["reactClientId"].Value)
	assert.Equal(t, map[string]interface{}{"Ref": "Pooluserpooldomain"}, tmpl.Outputs["domain"].Value)
	assert.Equal(t, map[string]interface{}{
		"Fn::Join": []interface{}{"", []interface{}{
			map[string]interface{}{"Ref": "PoolResourceServer"},
			"/S",
		}},
	}, tmpl.Outputs["scopeName"].Value)
}

func TestTemplateJSON(t *testing.T) {
	data, err := Synthesize(Assemble(testConfig())).JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2010-09-09", decoded["AWSTemplateFormatVersion"])

	scopes := decoded["Resources"].(map[string]interface{})["Poolreactclient"].(map[string]interface{})["Properties"].(map[string]interface{})["AllowedOAuthScopes"].([]interface{})
	require.Len(t, scopes, 4)
	assert.Equal(t, []interface{}{"email", "openid", "profile"}, scopes[:3])
}

func TestTemplateYAML(t *testing.T) {
	data, err := Synthesize(Assemble(testConfig())).YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "AWS::Cognito::UserPoolDomain")

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Len(t, decoded["Outputs"], 4)
}
