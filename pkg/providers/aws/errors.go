package aws

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// classify wraps err as a categorized error about one Cognito resource.
func classify(err error, message, resourceType, resourceID string) *stack.StackError {
	var (
		out    *stack.StackError
		stErr  *stack.StackError
		apiErr smithy.APIError
	)
	switch {
	case errors.As(err, &stErr):
		out = stack.NewError(stErr.Category, message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out = stack.ErrTimeout(message)
	case errors.As(err, &apiErr):
		out = fromAPIError(apiErr, message, resourceType, resourceID)
	default:
		out = stack.ErrInternal(message)
	}
	return out.WithResource(resourceType, resourceID).WithCause(err).WithProvider(ProviderName)
}

func fromAPIError(apiErr smithy.APIError, message, resourceType, resourceID string) *stack.StackError {
	// Cognito reports a taken domain prefix as InvalidParameterException.
	if msg := apiErr.ErrorMessage(); strings.Contains(msg, "already exists") || strings.Contains(msg, "Domain already associated") {
		return stack.ErrConflict(message)
	}
	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException":
		return stack.ErrNotFound(resourceType, resourceID)
	case "NotAuthorizedException", "AccessDeniedException", "UnauthorizedException":
		return stack.ErrPermission(message)
	case "InvalidParameterException", "InvalidOAuthFlowException", "ScopeDoesNotExistException", "ValidationException":
		return stack.ErrValidation(message)
	case "LimitExceededException":
		return stack.ErrConflict(message)
	case "TooManyRequestsException", "ThrottlingException":
		return stack.ErrRateLimit(message)
	case "ExpiredTokenException", "InvalidClientTokenId", "UnrecognizedClientException":
		return stack.ErrAuth(message)
	}
	return stack.ErrInternal(message)
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		return true
	}
	return stack.IsCategory(err, stack.ErrCategoryNotFound)
}
