package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/batch"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/plan"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/validation"
)

var (
	errInvalidPlan   = errors.New("plan validation failed")
	errExecuteFailed = errors.New("plan execution failed")
)

func newPlanCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage operation plans",
		Long:  "Create, validate and execute plan files (YAML, TOML or HCL)",
	}

	cmd.AddCommand(newPlanExecuteCommand(a))
	cmd.AddCommand(newPlanCreateCommand())
	cmd.AddCommand(newPlanValidateCommand(a))

	return cmd
}

// loadBatch reads a plan file and appends its steps to a batch over root.
// With createParents, or when the configuration asks for it, the batch is
// expanded with the directories its steps need.
func loadBatch(ctx context.Context, a *app, planFile, root string, createParents bool, opts ...execution.Option) (*plan.Plan, *batch.Batch, error) {
	p, err := plan.Load(planFile)
	if err != nil {
		return nil, nil, err
	}
	if root == "" {
		root = "."
	}

	base, err := a.cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	base = append(base, execution.WithLogger(a.logger))
	base = append(base, opts...)

	b := batch.New(filesystem.NewOSFileSystem(root), base...)
	if _, err := p.Build(b); err != nil {
		return nil, nil, fmt.Errorf("invalid plan %s: %w", planFile, err)
	}
	if createParents || a.cfg.Execution.ResolvePrerequisites {
		if b, err = b.WithPrerequisites(ctx); err != nil {
			return nil, nil, err
		}
	}
	return p, b, nil
}

// discard frees the snapshots of a result that will not be reverted again.
func discard(a *app, result *execution.Result) {
	if err := result.Discard(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to discard snapshots")
	}
}

func printReport(w io.Writer, ops []operations.Operation, report *validation.Report) {
	for _, v := range report.Violations {
		fmt.Fprintf(w, "  ✗ %s\n", v)
	}
	if report.SuggestedOrder != nil {
		fmt.Fprintf(w, "\nThe plan validates if its steps are reordered:\n")
		for i, idx := range report.SuggestedOrder {
			fmt.Fprintf(w, "  %d. %s\n", i+1, ops[idx].Describe())
		}
	}
}

func newPlanValidateCommand(a *app) *cobra.Command {
	var (
		root          string
		createParents bool
	)

	cmd := &cobra.Command{
		Use:   "validate [plan-file]",
		Short: "Validate an operation plan",
		Long:  "Check a plan's structure and its requirements against the filesystem without changing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			p, b, err := loadBatch(ctx, a, args[0], root, createParents)
			if err != nil {
				return err
			}

			report, err := b.Validate(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Description: %s\n", p.Description)
			fmt.Fprintf(out, "Operations: %d\n", b.Len())
			for i, op := range b.Operations() {
				fmt.Fprintf(out, "  %d. %s\n", i+1, op.Describe())
			}
			if !report.OK() {
				fmt.Fprintf(out, "\n%d violation(s):\n", len(report.Violations))
				printReport(out, b.Operations(), report)
				return errInvalidPlan
			}
			fmt.Fprintf(out, "\n✓ Plan is valid\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Root directory for filesystem operations (default: current directory)")
	cmd.Flags().BoolVar(&createParents, "create-parents", false, "Create missing parent directories ahead of the steps that need them")
	return cmd
}

func newPlanExecuteCommand(a *app) *cobra.Command {
	var (
		root            string
		continueOnError bool
		revertOnFailure bool
		createParents   bool
	)

	cmd := &cobra.Command{
		Use:   "execute [plan-file]",
		Short: "Execute an operation plan",
		Long:  "Validate and execute the operations of a plan file, optionally reverting them if any fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			var opts []execution.Option
			if continueOnError {
				opts = append(opts, execution.WithPolicy(core.PolicyContinue))
			}
			p, b, err := loadBatch(ctx, a, args[0], root, createParents, opts...)
			if err != nil {
				return err
			}

			report, err := b.Validate(ctx)
			if err != nil {
				return err
			}
			if !report.OK() {
				fmt.Fprintf(out, "Plan '%s' is not executable, %d violation(s):\n", p.Description, len(report.Violations))
				printReport(out, b.Operations(), report)
				return errInvalidPlan
			}

			result, err := b.Execute(ctx)
			if err != nil {
				return err
			}
			// Runs after any revert below.
			defer discard(a, result)

			fmt.Fprintf(out, "Plan '%s' execution summary:\n", p.Description)
			for _, ex := range result.Operations {
				status := "✓"
				if !ex.Succeeded() {
					status = "✗"
				}
				fmt.Fprintf(out, "  %s %s %s (%s) - %v\n", status, ex.Position, ex.Operation.Describe(), ex.Status, ex.Duration())
				if ex.Err != nil {
					fmt.Fprintf(out, "    Error: %v\n", ex.Err)
				}
			}
			if n := result.Skipped(); n > 0 {
				fmt.Fprintf(out, "  %d operation(s) not attempted\n", n)
			}

			if result.Success() {
				fmt.Fprintf(out, "\n✓ Plan executed successfully in %v\n", result.Duration())
				return nil
			}
			fmt.Fprintf(out, "\n✗ Plan execution failed in %v\n", result.Duration())

			if revertOnFailure {
				rr, err := result.Revert(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nRevert summary:\n")
				for _, it := range rr.Items {
					fmt.Fprintf(out, "  %s %s (%s)\n", it.Position, it.Operation.Describe(), it.Status)
					if it.Err != nil {
						fmt.Fprintf(out, "    Error: %v\n", it.Err)
					}
					if it.Warning != "" {
						fmt.Fprintf(out, "    Warning: %s\n", it.Warning)
					}
				}
			}
			return errExecuteFailed
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Root directory for filesystem operations (default: current directory)")
	cmd.Flags().BoolVar(&continueOnError, "continue", false, "Attempt every operation even after a failure")
	cmd.Flags().BoolVar(&revertOnFailure, "revert-on-failure", false, "Revert executed operations if any operation fails")
	cmd.Flags().BoolVar(&createParents, "create-parents", false, "Create missing parent directories ahead of the steps that need them")

	return cmd
}

func newPlanCreateCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "create [description]",
		Short: "Create a new operation plan",
		Long:  "Create a plan template; the format follows the output file extension",
		Args:  cobra.ExactArgs(1),
		// Creating a template needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			description := args[0]
			if output == "" {
				output = "plan.yaml"
			}

			p := plan.FromOperations(description, []operations.Operation{
				operations.CreateDir("example"),
				operations.WriteFile("example/hello.txt", []byte("Hello, World!\n"), 0644),
			})
			if err := plan.Save(p, output); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created plan file: %s\n", output)
			fmt.Fprintf(out, "Description: %s\n", description)
			fmt.Fprintf(out, "Operations: %d\n", len(p.Operations))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output plan file (default: plan.yaml)")

	return cmd
}
