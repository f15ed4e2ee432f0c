package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Controller ends the life of a draft: finalize makes it permanent history,
// abandon discards it together with any rows auto-save already created.
type Controller struct {
	store     *DraftStore
	writer    *Writer
	autosaver *AutoSaver
	backend   Backend
	metrics   *metrics.Manager
	clock     func() time.Time
}

func NewController(
	store *DraftStore,
	writer *Writer,
	autosaver *AutoSaver,
	backend Backend,
	metricsManager *metrics.Manager,
) *Controller {
	return &Controller{
		store:     store,
		writer:    writer,
		autosaver: autosaver,
		backend:   backend,
		metrics:   metricsManager,
		clock:     time.Now,
	}
}

// Finalize persists the draft with a completion time and clears it. On error the
// draft is kept so the user can retry without losing anything.
func (c *Controller) Finalize(ctx context.Context) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.controller.finalize")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	c.autosaver.Cancel()

	c.writer.mu.Lock()
	defer c.writer.mu.Unlock()

	draft, ok := c.store.Draft()
	if !ok {
		return nil, ErrNoDraft
	}
	span.SetAttributes(attribute.String("draft.id", draft.ID))

	completedAt := c.clock()
	draft.CompletedAt = &completedAt

	id, err := c.writer.persist(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	originalID := draft.ID
	draft.ID = id
	if !c.store.ClearIf(originalID) {
		log.Warnf("finalize: draft %s was replaced while finalizing", originalID)
	}
	c.metrics.CounterSessionsFinalized.Inc()

	return &draft, nil
}

// Abandon deletes the backend rows of a persisted draft and clears the draft.
// A completed session opened for editing stays in history; only the draft goes.
// The draft is cleared even when the delete fails. Returns nil and no error
// when there is nothing to abandon.
func (c *Controller) Abandon(ctx context.Context) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.controller.abandon")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	c.autosaver.Cancel()

	c.writer.mu.Lock()
	defer c.writer.mu.Unlock()

	draft, ok := c.store.Draft()
	if !ok {
		c.store.Clear()
		return nil, nil
	}
	span.SetAttributes(attribute.String("draft.id", draft.ID))

	if draft.IsPersisted() && !draft.IsCompleted() {
		err = c.backend.DeleteSession(ctx, draft.UserID, draft.ID)
		if err != nil {
			err = fmt.Errorf("abandon: delete session %s: %w", draft.ID, err)
		}
	}

	c.store.Clear()
	c.metrics.CounterSessionsAbandoned.Inc()

	return &draft, err
}

// Resync replaces a persisted draft with the backend copy; the last writer wins.
func (c *Controller) Resync(ctx context.Context) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.controller.resync")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	c.writer.mu.Lock()
	defer c.writer.mu.Unlock()

	draft, ok := c.store.Draft()
	if !ok || !draft.IsPersisted() {
		return false, nil
	}

	fresh, err := c.backend.GetSession(ctx, draft.UserID, draft.ID)
	if err != nil {
		return false, fmt.Errorf("resync: get session %s: %w", draft.ID, err)
	}
	if fresh == nil {
		log.Warnf("resync: session %s no longer exists in the backend", draft.ID)
		return false, nil
	}

	if !c.store.Replace(*fresh) {
		return false, nil
	}
	c.metrics.CounterDraftResyncs.Inc()
	return true, nil
}
