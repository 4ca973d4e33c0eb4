package workers

import (
	"context"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/state"
)

type FeedWorker struct {
	events       <-chan changes.Event
	stateManager state.StateManager
}

type NewFeedWorkerOptions struct {
	Events       <-chan changes.Event
	StateManager state.StateManager
}

// NewFeedWorker creates a new FeedWorker.
// The worker folds change-feed events into the state manager, one at a
// time, in the order they arrive.
func NewFeedWorker(opts NewFeedWorkerOptions) *FeedWorker {
	return &FeedWorker{
		events:       opts.Events,
		stateManager: opts.StateManager,
	}
}

// Start runs until the context is cancelled or the event channel is closed.
func (w *FeedWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.events:
			if !ok {
				return
			}
			w.handleEvent(event)
		}
	}
}

func (w *FeedWorker) handleEvent(event changes.Event) {
	snapshot := w.stateManager.Dispatch(state.Changed{Event: event})
	log.Trace("Applied %s of %s, version %d", event.EventType, event.MvpID(), snapshot.Version())
}
