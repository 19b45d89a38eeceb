package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/fedsync/internal/app"
	"github.com/dokzlo13/fedsync/internal/desired"
	"github.com/dokzlo13/fedsync/internal/federation"
)

func applyCmd() *cobra.Command {
	var (
		dryRun  bool
		members []string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Make the federation contain exactly the desired members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcile(cmd.Context(), federation.ModePresent, dryRun, members)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the changes without making them")
	cmd.Flags().StringArrayVarP(&members, "member", "m", nil, "Desired member as host,username,password[,login_domain]; escape commas in values as \\, (repeatable)")
	return cmd
}

func removeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove every member and delete the federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcile(cmd.Context(), federation.ModeAbsent, dryRun, nil)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the changes without making them")
	return cmd
}

func queryCmd() *cobra.Command {
	var members []string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Show the federation members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcile(cmd.Context(), federation.ModeQuery, false, members)
		},
	}
	cmd.Flags().StringArrayVarP(&members, "member", "m", nil, "Only show this member host (repeatable)")
	return cmd
}

// stateCmd takes the mode as a value, for callers such as playbook tasks
// that pass it as data.
func stateCmd() *cobra.Command {
	var (
		state   string
		dryRun  bool
		members []string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile with an explicit state (present, absent, query)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := federation.ParseMode(state)
			if err != nil {
				return fmt.Errorf("--state: %w", err)
			}
			if mode == federation.ModeQuery && dryRun {
				return errors.New("--dry-run has no effect with --state query")
			}
			return reconcile(cmd.Context(), mode, dryRun, members)
		},
	}
	cmd.Flags().StringVarP(&state, "state", "s", string(federation.ModePresent), "Desired state: present, absent or query")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the changes without making them")
	cmd.Flags().StringArrayVarP(&members, "member", "m", nil, "Desired member as host,username,password[,login_domain]; escape commas in values as \\, (repeatable)")
	return cmd
}

func reconcile(ctx context.Context, mode federation.Mode, dryRun bool, specs []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	services, err := app.NewServices(cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	members, err := resolveMembers(ctx, mode, specs, services.DesiredMembers)
	if err != nil {
		return err
	}

	result, err := services.Reconcile(ctx, federation.Request{
		Desired: members,
		Mode:    mode,
		DryRun:  dryRun,
	}, "cli")
	if result != nil {
		if werr := writeResult(os.Stdout, output, result); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// resolveMembers picks the desired members: flags first, then configuration.
// A query without flags reports every member.
func resolveMembers(ctx context.Context, mode federation.Mode, specs []string, configured app.DesiredSource) ([]federation.DesiredMember, error) {
	if len(specs) > 0 {
		return desired.ParseSpecs(specs)
	}
	switch mode {
	case federation.ModePresent:
		return configured(ctx)
	default:
		return nil, nil
	}
}
