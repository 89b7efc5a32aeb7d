package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show whether the gate is open and why",
	GroupID: "gate",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := gateClient.Status(context.Background())
		if err != nil {
			return fmt.Errorf("getting status: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatus(cmd.OutOrStdout(), st, time.Now())
		return nil
	},
}

// overrideCommand builds open, close and auto.
func overrideCommand(use, short string, mode model.OverrideMode) *cobra.Command {
	c := &cobra.Command{
		Use:     use,
		Short:   short,
		GroupID: "gate",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			resp, err := gateClient.SetOverride(context.Background(), &api.OverrideRequest{
				Mode:   mode,
				Actor:  actor,
				Reason: reason,
			})
			if err != nil {
				return fmt.Errorf("setting override: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "override %s -> %s, gate is %s\n",
				resp.Previous, resp.Override.Mode, ui.RenderState(resp.State))
			return nil
		},
	}
	c.Flags().String("reason", "", "why the override was set")
	return c
}

var (
	openCmd  = overrideCommand("open", "Force the gate open regardless of schedule", model.OverrideForceOpen)
	closeCmd = overrideCommand("close", "Force the gate closed regardless of schedule", model.OverrideForceClosed)
	autoCmd  = overrideCommand("auto", "Clear the override and follow the schedule", model.OverrideAuto)
)

var reloadCmd = &cobra.Command{
	Use:     "reload",
	Short:   "Reload the policy document on the server",
	GroupID: "gate",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gateClient.Reload(context.Background(), actor)
		if err != nil {
			return fmt.Errorf("reloading policy: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "policy %s loaded from %s (%d rules, was %s)\n",
			resp.Version, resp.Source, resp.Rules, resp.PreviousVersion)
		return nil
	},
}
