package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/timegate/internal/client"
	"github.com/alfredjeanlab/timegate/internal/events"
	"github.com/alfredjeanlab/timegate/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [<pattern>...]",
	Short: "Follow gate events as they happen",
	Long: `Follow gate events as they happen.

Patterns use NATS subject syntax: "*" matches one segment and a trailing ">"
matches the rest, e.g. "timegate.gate.*". The default is every event.

Events stream from the server over HTTP. With --nats (or a remote that names
a NATS URL) they are read from the bus directly instead.`,
	GroupID: "inspect",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		raw, _ := cmd.Flags().GetBool("raw")
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}

		patterns := args
		if len(patterns) == 0 {
			patterns = []string{events.TopicAll}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		emit := func(topic string, data []byte) {
			if raw {
				fmt.Fprintf(out, "%s %s\n", topic, data)
				return
			}
			fmt.Fprintf(out, "%s %s %s\n",
				ui.RenderMuted(time.Now().Format("15:04:05")),
				ui.RenderAccent(topic),
				describeEvent(topic, data))
		}

		if natsURL != "" {
			return watchNATS(ctx, natsURL, patterns, emit)
		}
		return watchSSE(ctx, client.NewHTTPClient(httpURL, authToken), patterns, emit)
	},
}

// watchSSE follows the server's event stream, reconnecting with the last
// seen id after the stream drops.
func watchSSE(ctx context.Context, c *client.HTTPClient, patterns []string, emit func(string, []byte)) error {
	lastID := ""
	backoff := time.Second
	for {
		err := c.StreamEvents(ctx, patterns, lastID, func(e client.StreamEvent) error {
			lastID = e.ID
			backoff = time.Second
			emit(e.Topic, e.Data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return err
		}
		slog.Warn("event stream dropped, reconnecting", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// watchNATS reads events from the bus until ctx is cancelled.
func watchNATS(ctx context.Context, natsURL string, patterns []string, emit func(string, []byte)) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	merged := make(chan events.Message, 64)
	for _, p := range patterns {
		ch, cancel, err := sub.Subscribe(p)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", p, err)
		}
		defer cancel()
		go func() {
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-merged:
			emit(msg.Topic, msg.Data)
		}
	}
}

// describeEvent renders a one-line summary of a known event payload.
func describeEvent(topic string, data []byte) string {
	decode := func(v any) bool { return json.Unmarshal(data, v) == nil }

	switch topic {
	case events.TopicGateOpened, events.TopicGateClosed:
		var e events.GateChanged
		if decode(&e) {
			return fmt.Sprintf("%s -> %s %s", e.From, ui.RenderState(e.To), ui.RenderMuted(e.Reason))
		}
	case events.TopicGateWarning:
		var e events.GateWarning
		if decode(&e) {
			return ui.Markup(e.Message) + ui.RenderMuted(fmt.Sprintf(" (%d min, %s)", e.MinutesLeft, e.RuleID))
		}
	case events.TopicActionDenied:
		var e events.ActionDenied
		if decode(&e) {
			return fmt.Sprintf("%s %s: %s", e.ActorID, e.Action, e.Decision.Reason)
		}
	case events.TopicActorKick:
		var e events.ActorKick
		if decode(&e) {
			return e.ActorID + " " + ui.Markup(e.Message)
		}
	case events.TopicPolicyReloaded:
		var e events.PolicyReloaded
		if decode(&e) {
			return fmt.Sprintf("%s (%d rules) from %s", e.Version, e.Rules, e.Source)
		}
	case events.TopicPolicyReloadFailed:
		var e events.PolicyReloadFailed
		if decode(&e) {
			return ui.RenderWarn(e.Error)
		}
	case events.TopicOverrideChanged:
		var e events.OverrideChanged
		if decode(&e) {
			s := fmt.Sprintf("%s -> %s", e.Previous, e.Override.Mode)
			if e.Override.SetBy != "" {
				s += " by " + e.Override.SetBy
			}
			return s
		}
	}
	return string(data)
}

func init() {
	watchCmd.Flags().String("nats", "", "read events from this NATS server instead of the HTTP stream")
	watchCmd.Flags().Bool("raw", false, "print topic and JSON payload only")
}
