package stack

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackErrorFormatting(t *testing.T) {
	err := ErrNotFound("deployment", "CognitoStack-1a2b3c4d")
	assert.Equal(t, "deployment CognitoStack-1a2b3c4d: not found [not_found]", err.Error())

	err = ErrPermission("denied").WithProvider("aws").WithCause(errors.New("AccessDenied"))
	assert.Equal(t, "aws: denied [permission]: AccessDenied", err.Error())

	err = ErrConflict("failed to create user pool domain").
		WithProvider("aws").
		WithResource("cognito:user-pool-domain", "pfx")
	assert.Equal(t, "aws: cognito:user-pool-domain pfx: failed to create user pool domain [conflict]", err.Error())
}

func TestStackErrorCategories(t *testing.T) {
	wrapped := fmt.Errorf("deploy failed: %w", ErrConflict("domain taken"))

	assert.Equal(t, ErrCategoryConflict, CategoryOf(wrapped))
	assert.True(t, IsCategory(wrapped, ErrCategoryConflict))
	assert.False(t, IsCategory(wrapped, ErrCategoryNotFound))
	assert.True(t, errors.Is(wrapped, NewError(ErrCategoryConflict, "")))

	assert.Equal(t, ErrorCategory(""), CategoryOf(errors.New("plain")))
	assert.False(t, IsCategory(errors.New("plain"), ""))
}

func TestStackErrorRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit("slow down")))
	assert.True(t, IsRetryable(ErrTimeout("deadline")))
	assert.True(t, IsRetryable(NewError(ErrCategoryTimeout, "interrupted")))
	assert.False(t, IsRetryable(ErrValidation("bad")))
	assert.False(t, IsRetryable(ErrAuth("expired")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestStackErrorBuilders(t *testing.T) {
	cause := errors.New("root")
	err := ErrInternal("failed").
		WithResource("cognito:user-pool-client", "c1").
		WithDetail("attempt", 1).
		WithCause(cause)

	assert.Equal(t, "cognito:user-pool-client", err.ResourceType)
	assert.Equal(t, "c1", err.ResourceID)
	assert.Equal(t, 1, err.Details["attempt"])
	assert.ErrorIs(t, err, cause)
}

func TestRollbackError(t *testing.T) {
	original := ErrConflict("domain taken").WithResource("cognito:user-pool-domain", "pfx")

	clean := &RollbackError{OriginalError: original, CleanedResources: []string{"a", "b"}}
	assert.Contains(t, clean.Error(), "rolled back after")
	assert.True(t, IsCategory(clean, ErrCategoryConflict))

	partial := &RollbackError{
		OriginalError:     original,
		RollbackErrors:    []error{errors.New("delete failed")},
		OrphanedResources: []string{"AWS::Cognito::UserPool:us-east-1_abc", "AWS::Cognito::UserPoolResourceServer:id1"},
	}
	require.Contains(t, partial.Error(), "rollback failed after")
	assert.Contains(t, partial.Error(), "orphaned resources: AWS::Cognito::UserPool:us-east-1_abc, AWS::Cognito::UserPoolResourceServer:id1")
}
