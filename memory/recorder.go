package memory

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/switchboard/embedding"
	"github.com/tailored-agentic-units/switchboard/messaging"
	"github.com/tailored-agentic-units/switchboard/store"
)

// Recorder persists messages together with the embedding of their body.
type Recorder struct {
	store    store.Store
	embedder embedding.Embedder
}

func NewRecorder(s store.Store, e embedding.Embedder) *Recorder {
	return &Recorder{store: s, embedder: e}
}

// Record embeds msg.Body and appends the message. Neither step is retried;
// a failure leaves nothing recorded.
func (r *Recorder) Record(ctx context.Context, msg *messaging.Message) error {
	vec, err := r.embedder.Embed(ctx, msg.Body)
	if err != nil {
		return fmt.Errorf("embed message %s: %w", msg.ID, err)
	}
	if err := r.store.Append(ctx, msg, vec); err != nil {
		return fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return nil
}
