package stack

import (
	"errors"
	"strings"
)

// ErrorCategory classifies a failure so callers can decide how to react.
type ErrorCategory string

const (
	// ErrCategoryAuth means the credentials were missing, expired or rejected.
	ErrCategoryAuth ErrorCategory = "auth"
	// ErrCategoryPermission means the caller may not perform the operation,
	// including destroying a deployment it does not own.
	ErrCategoryPermission ErrorCategory = "permission"
	// ErrCategoryValidation means the configuration or a request parameter is invalid.
	ErrCategoryValidation ErrorCategory = "validation"
	// ErrCategoryNotFound means a resource or recorded deployment does not exist.
	ErrCategoryNotFound ErrorCategory = "not_found"
	// ErrCategoryConflict means a resource already exists, a domain prefix is
	// taken, or a quota is exhausted.
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryRateLimit means the API throttled the request.
	ErrCategoryRateLimit ErrorCategory = "rate_limit"
	// ErrCategoryInternal covers everything else.
	ErrCategoryInternal ErrorCategory = "internal"
	// ErrCategoryTimeout means the operation ran out of time or was interrupted.
	ErrCategoryTimeout ErrorCategory = "timeout"
)

// Retryable reports whether failures in the category may succeed on retry.
func (c ErrorCategory) Retryable() bool {
	return c == ErrCategoryRateLimit || c == ErrCategoryTimeout
}

// StackError is a categorized failure, optionally tied to one resource of a
// deployment.
type StackError struct {
	Category ErrorCategory
	Message  string

	// Provider names the provisioner that raised the error, if any.
	Provider string

	// ResourceType and ResourceID identify the resource involved, such as
	// "cognito:user-pool-domain" and the domain prefix.
	ResourceType string
	ResourceID   string

	Cause     error
	Retryable bool

	// Details carries extra context such as hints or missing config keys.
	Details map[string]interface{}
}

// Error renders "provider: type id: message [category]: cause", omitting
// empty parts.
func (e *StackError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.ResourceType != "" {
		b.WriteString(e.ResourceType)
		if e.ResourceID != "" {
			b.WriteString(" ")
			b.WriteString(e.ResourceID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	b.WriteString(" [")
	b.WriteString(string(e.Category))
	b.WriteString("]")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *StackError) Unwrap() error {
	return e.Cause
}

// Is matches any StackError of the same category.
func (e *StackError) Is(target error) bool {
	var stErr *StackError
	if errors.As(target, &stErr) {
		return e.Category == stErr.Category
	}
	return false
}

// NewError creates a StackError whose retryability follows its category.
func NewError(category ErrorCategory, message string) *StackError {
	return &StackError{
		Category:  category,
		Message:   message,
		Retryable: category.Retryable(),
		Details:   make(map[string]interface{}),
	}
}

func (e *StackError) WithProvider(p string) *StackError {
	e.Provider = p
	return e
}

func (e *StackError) WithResource(resourceType, resourceID string) *StackError {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

func (e *StackError) WithCause(err error) *StackError {
	e.Cause = err
	return e
}

func (e *StackError) WithDetail(key string, value interface{}) *StackError {
	e.Details[key] = value
	return e
}

func ErrAuth(message string) *StackError {
	return NewError(ErrCategoryAuth, message)
}

func ErrPermission(message string) *StackError {
	return NewError(ErrCategoryPermission, message)
}

func ErrValidation(message string) *StackError {
	return NewError(ErrCategoryValidation, message)
}

// ErrNotFound reports a missing resource or deployment record.
func ErrNotFound(resourceType, resourceID string) *StackError {
	return NewError(ErrCategoryNotFound, "not found").WithResource(resourceType, resourceID)
}

func ErrConflict(message string) *StackError {
	return NewError(ErrCategoryConflict, message)
}

func ErrRateLimit(message string) *StackError {
	return NewError(ErrCategoryRateLimit, message)
}

func ErrInternal(message string) *StackError {
	return NewError(ErrCategoryInternal, message)
}

func ErrTimeout(message string) *StackError {
	return NewError(ErrCategoryTimeout, message)
}

// CategoryOf returns the category of the first StackError in err's chain, or
// "" when there is none.
func CategoryOf(err error) ErrorCategory {
	var stErr *StackError
	if errors.As(err, &stErr) {
		return stErr.Category
	}
	return ""
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return category != "" && CategoryOf(err) == category
}

// IsRetryable reports whether err is a StackError marked retryable.
func IsRetryable(err error) bool {
	var stErr *StackError
	return errors.As(err, &stErr) && stErr.Retryable
}

// RollbackError is returned when Apply fails after creating resources. It
// lists what the rollback deleted and what it left behind.
type RollbackError struct {
	// OriginalError is the failure that triggered the rollback.
	OriginalError error

	RollbackErrors []error

	// CleanedResources and OrphanedResources hold "kind:id" entries in
	// deletion order.
	CleanedResources  []string
	OrphanedResources []string
}

func (e *RollbackError) Error() string {
	var b strings.Builder
	if len(e.RollbackErrors) > 0 {
		b.WriteString("rollback failed after: ")
	} else {
		b.WriteString("rolled back after: ")
	}
	b.WriteString(e.OriginalError.Error())
	if len(e.OrphanedResources) > 0 {
		b.WriteString("; orphaned resources: ")
		b.WriteString(strings.Join(e.OrphanedResources, ", "))
	}
	return b.String()
}

// Unwrap exposes the original failure so its category stays visible.
func (e *RollbackError) Unwrap() error {
	return e.OriginalError
}

// UnrecordedError is returned when a stack was provisioned but its deployment
// record could not be saved. Ref holds everything needed to find the
// resources again.
type UnrecordedError struct {
	Ref DeploymentRef
	Err error
}

func (e *UnrecordedError) Error() string {
	return "deployment " + e.Ref.ID + " was provisioned but not recorded: " + e.Err.Error()
}

func (e *UnrecordedError) Unwrap() error {
	return e.Err
}
