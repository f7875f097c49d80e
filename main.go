// Package main is the entry point for the cognito-stack CLI.
//
// The CLI synthesizes the Cognito identity stack as a CloudFormation
// template, provisions it directly against the Cognito API, and manages the
// recorded deployments (validate, destroy, list, describe).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

const (
	exitError           = 1
	exitValidationError = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand(newApp())
	if err := cmd.ExecuteContext(ctx); err != nil {
		handleError(os.Stderr, err)
		if errors.Is(err, errValidationFailed) {
			os.Exit(exitValidationError)
		}
		os.Exit(exitError)
	}
}

func handleError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var rbErr *stack.RollbackError
	switch {
	case errors.As(err, &rbErr) && len(rbErr.OrphanedResources) > 0:
		message = fmt.Sprintf("%s\nHint: delete the orphaned resources by hand before deploying again.", err)
	case errors.Is(err, context.Canceled):
		message = fmt.Sprintf("%s\nHint: interrupted; resources created so far were rolled back.", err)
	default:
		switch stack.CategoryOf(err) {
		case stack.ErrCategoryAuth:
			message = fmt.Sprintf("%s\nHint: AWS credentials were rejected. Run 'aws sts get-caller-identity' to check them.", err)
		case stack.ErrCategoryPermission:
			message = fmt.Sprintf("%s\nHint: the caller lacks cognito-idp permissions, or the deployment is not owned (use --force).", err)
		case stack.ErrCategoryConflict:
			message = fmt.Sprintf("%s\nHint: domain prefixes are global; choose another domainPrefix.", err)
		}
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}
