package coordinator

import (
	"context"
	"log/slog"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/tracker"
)

// track opens a branch for msg under its parent and starts waiting for the
// identities it awaits. The branch completes once those replies are in and
// every sub-request opened beneath it has completed.
func (c *Coordinator) track(ctx context.Context, msg *messaging.Message) error {
	if err := c.tree.Branch(msg.ID, msg.ParentID, c.notifyRequester(msg)); err != nil {
		return err
	}
	if err := c.replies.Start(msg.ID, msg.AwaitReplies, c.repliesDone); err != nil {
		c.tree.Remove(msg.ID)
		return err
	}

	observability.Emit(ctx, c.observer, EventTrackingStart, observability.LevelInfo, "coordinator.track", map[string]any{
		"tracking_id": msg.ID,
		"parent_id":   msg.ParentID,
		"awaited":     msg.AwaitReplies,
	})
	return nil
}

func (c *Coordinator) repliesDone(ctx context.Context, trackingID string, replies []tracker.Reply[protocol.Reply]) error {
	payload := make([]protocol.Reply, len(replies))
	for i, r := range replies {
		payload[i] = r.Value
	}
	c.completeBranch(ctx, trackingID, payload)
	return nil
}

// completeBranch completes name and keeps walking up while each parent
// already has its own replies. A branch that cannot complete yet is parked
// in ready until its last child finishes.
func (c *Coordinator) completeBranch(ctx context.Context, name string, payload []protocol.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		ok, err := c.tree.Complete(ctx, name, payload)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to complete branch", slog.String("branch", name), slog.String("error", err.Error()))
			return
		}
		if !ok {
			c.ready[name] = payload
			observability.Emit(ctx, c.observer, EventBranchReady, observability.LevelVerbose, "coordinator.completeBranch", map[string]any{
				"branch":   name,
				"children": len(c.tree.Children(name)),
			})
			return
		}
		delete(c.ready, name)

		parent, ok := c.tree.Parent(name)
		if !ok {
			c.tree.Prune(name)
			return
		}
		parentPayload, ready := c.ready[parent]
		if !ready {
			return
		}
		name, payload = parent, parentPayload
	}
}

// notifyRequester tells the sender of msg that its replies are complete.
func (c *Coordinator) notifyRequester(msg *messaging.Message) tracker.BranchFunc[[]protocol.Reply] {
	return func(ctx context.Context, name string, payload []protocol.Reply) error {
		observability.Emit(ctx, c.observer, EventRepliesComplete, observability.LevelInfo, "coordinator.notifyRequester", map[string]any{
			"tracking_id": name,
			"requester":   msg.From,
			"replies":     len(payload),
		})
		return c.deliver(ctx, msg.From, protocol.NewRepliesComplete(name, msg.ThreadID, payload))
	}
}
