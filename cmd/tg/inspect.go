package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/policy"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:     "check <actor> <action>",
	Short:   "Ask the server whether an actor may perform an action",
	GroupID: "inspect",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		perms, _ := cmd.Flags().GetStringSlice("perm")

		req := &api.EvaluateRequest{ActorID: args[0], Action: args[1], Permissions: perms}
		if at != "" {
			ts, err := parseAt(at, time.Now())
			if err != nil {
				return err
			}
			req.Timestamp = ts
		}

		d, err := gateClient.Evaluate(context.Background(), req)
		if err != nil {
			return fmt.Errorf("evaluating: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		printDecision(cmd.OutOrStdout(), args[0], args[1], d)
		return nil
	},
}

// parseAt accepts RFC 3339, or HH:mm meaning that time today in the local
// zone.
func parseAt(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("15:04", s, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC 3339 or HH:mm, got %q", s)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}

var rulesCmd = &cobra.Command{
	Use:     "rules",
	Short:   "List the active policy rules and which windows are open now",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := gateClient.Rules(context.Background())
		if err != nil {
			return fmt.Errorf("getting rules: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		if v.Policy == nil {
			return fmt.Errorf("server returned no policy")
		}
		loc, err := time.LoadLocation(v.TimeZone)
		if err != nil {
			return fmt.Errorf("server time zone %q: %w", v.TimeZone, err)
		}
		v.Policy.Location = loc
		printPolicy(cmd.OutOrStdout(), v.Policy, time.Now())
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:               "validate <file>",
	Short:             "Check a policy document without loading it",
	GroupID:           "inspect",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		p, err := policy.Parse(data, "file:"+args[0])
		if err != nil {
			var b strings.Builder
			fmt.Fprintf(&b, "%s is invalid", args[0])
			for _, ce := range policy.ConfigErrors(err) {
				b.WriteString("\n  " + ce.Error())
			}
			if len(policy.ConfigErrors(err)) == 0 {
				b.WriteString(": " + err.Error())
			}
			return errors.New(b.String())
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), api.PolicyView{Policy: p, TimeZone: p.TimeZone()})
		}
		printPolicy(cmd.OutOrStdout(), p, time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s is valid (digest %s)\n", args[0], p.Digest)
		return nil
	},
}

var rosterCmd = &cobra.Command{
	Use:     "roster",
	Short:   "List actors the server believes are online",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := gateClient.Roster(context.Background())
		if err != nil {
			return fmt.Errorf("getting roster: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), r)
		}
		printRoster(cmd.OutOrStdout(), r, time.Now())
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Show the audit log, newest first",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		who, _ := cmd.Flags().GetString("who")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		req := &api.EventsRequest{Topic: topic, Actor: who, Limit: limit}
		if since > 0 {
			req.Since = time.Now().Add(-since)
		}
		resp, err := gateClient.ListEvents(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp.Events)
		}
		printEvents(cmd.OutOrStdout(), resp.Events)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the timegate server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := gateClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), api.HealthResponse{Status: status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("at", "", "evaluate at this time (RFC 3339 or HH:mm today)")
	checkCmd.Flags().StringSlice("perm", nil, "permissions the actor holds")

	eventsCmd.Flags().String("topic", "", "exact topic, or a prefix ending in '.'")
	eventsCmd.Flags().String("who", "", "only events for this actor")
	eventsCmd.Flags().Duration("since", 0, "only events newer than this (e.g. 2h)")
	eventsCmd.Flags().Int("limit", 50, "maximum number of events")
}
