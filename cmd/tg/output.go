package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/timegate/internal/api"
	"github.com/alfredjeanlab/timegate/internal/model"
	"github.com/alfredjeanlab/timegate/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// formatDuration renders d rounded to the minute, e.g. "2h05m" or "45s"
// below a minute.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	d = d.Round(time.Minute)
	h, m := int(d.Hours()), int(d.Minutes())%60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func printStatus(w io.Writer, st *api.StatusResponse, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", ui.RenderState(st.State))
	override := string(st.Override)
	if st.Override != model.OverrideAuto {
		override = ui.RenderWarn(override)
		if st.OverrideSetBy != "" {
			override += ui.RenderMuted(" by " + st.OverrideSetBy)
		}
		if st.OverrideReason != "" {
			override += ui.RenderMuted(" (" + st.OverrideReason + ")")
		}
	}
	fmt.Fprintf(tw, "Override:\t%s\n", override)
	fmt.Fprintf(tw, "Schedule:\t%s\t%s\n", ui.RenderState(st.Scheduled), ui.RenderMuted(st.Reason))
	if st.ClosesAt != nil {
		fmt.Fprintf(tw, "Closes:\t%s\t%s\n", st.ClosesAt.Local().Format("Mon 15:04"), ui.RenderMuted("in "+formatDuration(st.ClosesAt.Sub(now))))
	}
	fmt.Fprintf(tw, "Online:\t%d\n", st.Online)
	fmt.Fprintf(tw, "Policy:\t%s\t%s\n", st.PolicyVersion, ui.RenderMuted(st.PolicySource))
	fmt.Fprintf(tw, "Time zone:\t%s\n", st.TimeZone)
	tw.Flush()
}

func printDecision(w io.Writer, actorID, action string, d *model.Decision) {
	fmt.Fprintf(w, "%s %s %s: %s\n", ui.RenderAllowed(d.Allowed), actorID, action, d.Reason)
	if d.PolicyVersion != "" {
		fmt.Fprintf(w, "%s\n", ui.RenderMuted("policy "+d.PolicyVersion+" at "+d.EvaluatedAt.Local().Format(time.RFC3339)))
	}
}

// printPolicy lists the rules of p and marks the windows active at now.
func printPolicy(w io.Writer, p *model.Policy, now time.Time) {
	local := p.In(now)
	day, tod := local.Weekday(), model.TimeOfDayOf(local)

	fmt.Fprintf(w, "Policy %s %s\n", p.Version, ui.RenderMuted(p.Source))
	fmt.Fprintf(w, "Time zone %s, default %s, now %s\n", p.TimeZone(), p.DefaultMode, local.Format("Mon 15:04"))
	if len(p.Rules) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no rules"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tMODE\tACTIONS\tWINDOW\tACTIVE")
	for _, r := range p.Rules {
		for i, win := range r.Windows {
			id, mode, actions := "", "", ""
			if i == 0 {
				id, mode, actions = r.ID, string(r.Mode), strings.Join(r.Actions, ",")
			}
			active := ""
			if left, ok := win.Until(day, tod); ok {
				active = ui.RenderAccent("yes, " + formatDuration(left) + " left")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, mode, actions, win, active)
		}
	}
	tw.Flush()
}

func printRoster(w io.Writer, r *api.Roster, now time.Time) {
	if r.Count == 0 {
		fmt.Fprintln(w, "nobody online")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTOR\tONLINE\tIDLE\tLAST ACTION\tACTIONS")
	for _, e := range r.Actors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.ActorID, formatDuration(now.Sub(e.JoinedAt)), formatDuration(now.Sub(e.LastSeen)), e.LastAction, e.ActionCount)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d online\n", r.Count)
}

func printEvents(w io.Writer, evts []*model.Event) {
	if len(evts) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOPIC\tACTOR\tPAYLOAD")
	for _, e := range evts {
		payload := string(e.Payload)
		if len(payload) > 80 {
			payload = payload[:77] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Topic, e.Actor, ui.RenderMuted(payload))
	}
	tw.Flush()
}
