package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/timegate/internal/events"
)

// StartControlSubscriber applies reload and override requests published
// on the control topics. It blocks until ctx is cancelled.
func (s *GateServer) StartControlSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe("timegate.control.>")
	if err != nil {
		return fmt.Errorf("control: subscribe: %w", err)
	}
	defer cancel()

	s.logger.Info("control: subscriber started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("control: subscriber stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				s.logger.Info("control: subscription channel closed")
				return nil
			}
			s.handleControl(ctx, msg)
		}
	}
}

func (s *GateServer) handleControl(ctx context.Context, msg events.Message) {
	switch msg.Topic {
	case events.TopicControlReload:
		var req events.ControlReload
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("control: bad reload payload", "error", err)
			return
		}
		if _, err := s.Reload(ctx, req.Actor); err != nil {
			s.logger.Warn("control: reload failed", "actor", req.Actor, "error", err)
		}
	case events.TopicControlOverride:
		var req events.ControlOverride
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("control: bad override payload", "error", err)
			return
		}
		if _, err := s.SetOverride(ctx, req.Mode, req.Actor, req.Reason); err != nil {
			s.logger.Warn("control: override failed", "mode", req.Mode, "actor", req.Actor, "error", err)
		}
	default:
		s.logger.Warn("control: unknown topic", "topic", msg.Topic)
	}
}
