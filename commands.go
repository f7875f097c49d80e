package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/cognito-stack/internal/logging"
	"github.com/anirudhbiyani/cognito-stack/pkg/providers/aws"
	"github.com/anirudhbiyani/cognito-stack/pkg/stack"
)

// version is set at build time.
var version = "0.1.0"

var errValidationFailed = errors.New("deployment failed validation")

// awsTarget selects the account and region a provisioner talks to.
type awsTarget struct {
	region  string
	profile string
	// offline skips credential loading; only dry runs may use it.
	offline bool
}

// app holds the state shared by all commands.
type app struct {
	logLevel  string
	statePath string
	logger    *zap.Logger

	newProvisioner func(ctx context.Context, target awsTarget, logger *zap.Logger) (stack.Provisioner, error)
	newStateStore  func(path string) (stack.StateStore, error)
}

func newApp() *app {
	return &app{
		logger: zap.NewNop(),
		newProvisioner: func(ctx context.Context, target awsTarget, logger *zap.Logger) (stack.Provisioner, error) {
			if target.offline {
				return aws.New(aws.WithRegion(target.region), aws.WithLogger(logger)), nil
			}
			return aws.NewFromEnvironment(ctx, aws.LoadOptions{Region: target.region, Profile: target.profile}, aws.WithLogger(logger))
		},
		newStateStore: func(path string) (stack.StateStore, error) {
			return stack.NewFileStateStore(path)
		},
	}
}

func (a *app) manager(ctx context.Context, target awsTarget) (*stack.Manager, stack.StateStore, error) {
	store, err := a.newStateStore(a.statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	p, err := a.newProvisioner(ctx, target, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return stack.NewManager(p, stack.WithStateStore(store), stack.WithLogger(a.logger)), store, nil
}

func (a *app) lookup(ctx context.Context, id string) (*stack.DeploymentRef, error) {
	store, err := a.newStateStore(a.statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	ref, err := store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("deployment not found: %w", err)
	}
	return ref, nil
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cognito-stack",
		Short: "Declare and provision a Cognito user pool with an OAuth client and hosted domain",
		Long: `cognito-stack builds an identity stack from six configuration values:
a user pool, a resource server exposing one custom scope, an OAuth client
using the authorization code flow, and a Cognito-hosted login domain.

The stack can be synthesized as a CloudFormation template or provisioned
directly through the Cognito API. Deployments are recorded locally so they
can later be validated and destroyed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&a.statePath, "state", stack.DefaultStateStorePath(), "Path to the deployment state file")

	cmd.AddCommand(
		newSynthCommand(a),
		newDeployCommand(a),
		newOutputsCommand(a),
		newValidateCommand(a),
		newDestroyCommand(a),
		newListCommand(a),
		newDescribeCommand(a),
		newVersionCommand(),
	)
	return cmd
}

func loadStack(path, name string) (*stack.Stack, error) {
	cfg, err := stack.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return stack.AssembleNamed(name, cfg), nil
}

func newSynthCommand(a *app) *cobra.Command {
	var (
		configPath string
		stackName  string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Print the CloudFormation template for the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadStack(configPath, stackName)
			if err != nil {
				return err
			}
			tmpl := stack.Synthesize(s)

			var data []byte
			switch output {
			case "json":
				data, err = tmpl.JSON()
			case "yaml":
				data, err = tmpl.YAML()
			default:
				return fmt.Errorf("unknown output format: %s", output)
			}
			if err != nil {
				return err
			}
			a.logger.Debug("synthesized template", zap.Int("resources", len(tmpl.Resources)))
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the stack configuration file")
	cmd.Flags().StringVar(&stackName, "stack-name", stack.DefaultStackName, "Stack name")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json, yaml)")
	return cmd
}

func newDeployCommand(a *app) *cobra.Command {
	var (
		configPath string
		stackName  string
		region     string
		profile    string
		dryRun     bool
		tags       map[string]string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision the stack through the Cognito API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadStack(configPath, stackName)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			manager, _, err := a.manager(ctx, awsTarget{region: region, profile: profile, offline: dryRun})
			if err != nil {
				return err
			}

			outputs, err := manager.Deploy(ctx, s, stack.DeployOptions{DryRun: dryRun, Tags: tags})
			var unrecorded *stack.UnrecordedError
			if errors.As(err, &unrecorded) {
				printUnrecorded(cmd.ErrOrStderr(), unrecorded.Ref)
				return err
			}
			if err != nil {
				return fmt.Errorf("deploy failed: %w", err)
			}

			w := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(w, "=== Dry-run Results ===")
				fmt.Fprintln(w, outputs.Values["plan"])
				if outputs.Plan != nil {
					for i, action := range outputs.Plan.Actions {
						fmt.Fprintf(w, "  %d. %s %s %v\n", i+1, action.Operation, action.ResourceType, action.Details["path"])
					}
				}
				return nil
			}

			fmt.Fprintln(w, "=== Deploy Complete ===")
			fmt.Fprintf(w, "Deployment ID: %s\n", outputs.Ref.ID)
			fmt.Fprintf(w, "Stack: %s\n", outputs.Ref.StackName)
			fmt.Fprintf(w, "Region: %s\n", outputs.Ref.Region)
			printOutputs(w, outputs.Values)
			if len(outputs.Instructions) > 0 {
				fmt.Fprintln(w, "\nInstructions:")
				for _, inst := range outputs.Instructions {
					fmt.Fprintf(w, "  - %s\n", inst)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the stack configuration file")
	cmd.Flags().StringVar(&stackName, "stack-name", stack.DefaultStackName, "Stack name")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (defaults to the SDK's resolution)")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without calling AWS")
	cmd.Flags().StringToStringVar(&tags, "tag", nil, "User pool tag as key=value (repeatable)")
	return cmd
}

func newOutputsCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "outputs <deployment-id>",
		Short: "Print the stack outputs of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch output {
			case "json":
				return writeJSON(w, ref.Outputs)
			case "text":
				for _, name := range stack.OutputNames {
					fmt.Fprintf(w, "%s=%s\n", name, ref.Outputs[name])
				}
				return nil
			default:
				return fmt.Errorf("unknown output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")
	return cmd
}

func newValidateCommand(a *app) *cobra.Command {
	var (
		refID   string
		profile string
		timeout time.Duration
		checks  []string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a deployment against the live Cognito resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ref, err := a.lookup(ctx, refID)
			if err != nil {
				return err
			}
			manager, _, err := a.manager(ctx, awsTarget{region: ref.Region, profile: profile})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Validating deployment: %s\n", ref.ID)

			report, err := manager.Validate(ctx, *ref, stack.ValidateOptions{CheckIDs: checks, Timeout: timeout})
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			printReport(w, report)

			if !report.IsValid() {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment ID")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Validation timeout")
	cmd.Flags().StringSliceVar(&checks, "check", nil, "Run only the named checks")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func printReport(w io.Writer, report *stack.ValidationReport) {
	fmt.Fprintln(w, "\n=== Validation Report ===")
	fmt.Fprintf(w, "Deployment: %s\n", report.Ref.ID)
	fmt.Fprintf(w, "Valid: %t\n", report.IsValid())
	fmt.Fprintf(w, "Checks: %d passed, %d failed, %d skipped\n",
		report.Summary.PassedChecks,
		report.Summary.FailedChecks,
		report.Summary.SkippedChecks)

	for _, check := range report.Checks {
		status := "✓"
		switch check.Status {
		case stack.CheckStatusFailed:
			status = "✗"
		case stack.CheckStatusSkipped:
			status = "○"
		}
		fmt.Fprintf(w, "\n%s %s [%s]\n", status, check.Name, check.Severity)
		if check.Status == stack.CheckStatusFailed && check.Remediation != "" {
			fmt.Fprintf(w, "  Remediation: %s\n", check.Remediation)
		}
	}
}

func newDestroyCommand(a *app) *cobra.Command {
	var (
		refID   string
		profile string
		dryRun  bool
		force   bool
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete a deployment's resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ref, err := a.lookup(ctx, refID)
			if err != nil {
				return err
			}
			manager, _, err := a.manager(ctx, awsTarget{region: ref.Region, profile: profile, offline: dryRun})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			cancelled := false
			opts := stack.DestroyOptions{DryRun: dryRun, Force: force}
			if !yes && !dryRun {
				in := cmd.InOrStdin()
				opts.Confirm = func(plan stack.Plan) bool {
					fmt.Fprintf(w, "About to destroy deployment: %s\n", ref.ID)
					fmt.Fprintln(w, plan.Summary)
					for _, action := range plan.Actions {
						fmt.Fprintf(w, "  - %s %s %s\n", action.Operation, action.ResourceType, action.ResourceID)
					}
					fmt.Fprint(w, "\nAre you sure? [y/N]: ")
					if !confirmed(in) {
						cancelled = true
						return false
					}
					return true
				}
			}

			if dryRun {
				fmt.Fprintln(w, "Dry-run mode: no changes will be made")
				for _, action := range stack.DestroyPlan(*ref).Actions {
					fmt.Fprintf(w, "  - %s %s %s\n", action.Operation, action.ResourceType, action.ResourceID)
				}
			}

			if err := manager.Destroy(ctx, *ref, opts); err != nil {
				if cancelled {
					fmt.Fprintln(w, "Cancelled")
					return nil
				}
				return fmt.Errorf("destroy failed: %w", err)
			}

			if dryRun {
				fmt.Fprintln(w, "Would destroy deployment and associated resources")
			} else {
				fmt.Fprintf(w, "Successfully destroyed deployment: %s\n", ref.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "ref", "", "Deployment ID")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS shared config profile")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be deleted")
	cmd.Flags().BoolVar(&force, "force", false, "Destroy even if the deployment is not owned")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func confirmed(r io.Reader) bool {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func newListCommand(a *app) *cobra.Command {
	var (
		stackName string
		output    string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.newStateStore(a.statePath)
			if err != nil {
				return fmt.Errorf("failed to initialize state store: %w", err)
			}
			refs, err := store.List(cmd.Context(), stack.ListFilter{StackName: stackName, Limit: limit})
			if err != nil {
				return fmt.Errorf("failed to list deployments: %w", err)
			}

			w := cmd.OutOrStdout()
			switch output {
			case "json":
				return writeJSON(w, refs)
			case "table":
				if len(refs) == 0 {
					fmt.Fprintln(w, "No deployments found")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTACK\tREGION\tOWNED\tCREATED")
				for _, ref := range refs {
					owned := "no"
					if ref.Owned {
						owned = "yes"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						ref.ID, ref.StackName, ref.Region, owned, ref.CreatedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVar(&stackName, "stack-name", "", "Only list deployments of this stack")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of deployments to list")
	return cmd
}

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <deployment-id>",
		Short: "Show the details of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "=== Deployment Details ===")
			fmt.Fprintf(w, "ID: %s\n", ref.ID)
			fmt.Fprintf(w, "Stack: %s\n", ref.StackName)
			fmt.Fprintf(w, "Provider: %s\n", ref.Provider)
			fmt.Fprintf(w, "Region: %s\n", ref.Region)
			fmt.Fprintf(w, "Owned: %t\n", ref.Owned)
			fmt.Fprintf(w, "Created: %s\n", ref.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "Version: %d\n", ref.Version)

			if len(ref.ResourceIDs) > 0 {
				fmt.Fprintln(w, "\nResources:")
				keys := make([]string, 0, len(ref.ResourceIDs))
				for k := range ref.ResourceIDs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "  %s: %s\n", k, ref.ResourceIDs[k])
				}
			}
			printOutputs(w, ref.Outputs)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cognito-stack version %s\n", version)
		},
	}
}

func printOutputs(w io.Writer, values map[string]string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintln(w, "\nOutputs:")
	for _, name := range stack.OutputNames {
		if v, ok := values[name]; ok {
			fmt.Fprintf(w, "  %s: %s\n", name, v)
		}
	}
}

// printUnrecorded lists what a deploy created when its record was lost, so
// the resources can still be found and destroyed.
func printUnrecorded(w io.Writer, ref stack.DeploymentRef) {
	fmt.Fprintln(w, "Warning: the stack was deployed but its record could not be saved.")
	fmt.Fprintf(w, "Deployment ID: %s\n", ref.ID)
	fmt.Fprintf(w, "Region: %s\n", ref.Region)
	fmt.Fprintln(w, "Resources:")
	keys := make([]string, 0, len(ref.ResourceIDs))
	for k := range ref.ResourceIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, ref.ResourceIDs[k])
	}
	printOutputs(w, ref.Outputs)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
