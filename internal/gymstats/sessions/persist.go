package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const autosaveTimeout = 10 * time.Second

// Writer serializes all backend writes of one draft, so that an auto-save
// never interleaves with finalize or abandon.
type Writer struct {
	mu      sync.Mutex
	store   *DraftStore
	backend Backend
}

func NewWriter(store *DraftStore, backend Backend) *Writer {
	return &Writer{
		store:   store,
		backend: backend,
	}
}

// persist inserts a draft that has a temporary id, or rewrites it otherwise.
// Returns the backend id. w.mu must be held.
func (w *Writer) persist(ctx context.Context, draft Session) (string, error) {
	if !draft.IsPersisted() {
		id, err := w.backend.InsertSession(ctx, draft)
		if err != nil {
			return "", fmt.Errorf("insert session: %w", err)
		}
		return id, nil
	}

	if err := w.backend.UpdateSession(ctx, draft); err != nil {
		return "", fmt.Errorf("update session %s: %w", draft.ID, err)
	}
	return draft.ID, nil
}

// AutoSaver persists the draft after a quiet period following the last edit.
// Failures are logged and counted, never surfaced; the next edit schedules another attempt.
type AutoSaver struct {
	store     *DraftStore
	writer    *Writer
	metrics   *metrics.Manager
	debouncer *Debouncer
}

func NewAutoSaver(store *DraftStore, writer *Writer, delay time.Duration, metricsManager *metrics.Manager) *AutoSaver {
	a := &AutoSaver{
		store:   store,
		writer:  writer,
		metrics: metricsManager,
	}
	a.debouncer = NewDebouncer(delay, a.save)
	return a
}

func (a *AutoSaver) DraftChanged(change Change) {
	switch change.Kind {
	case ChangeMutated:
		a.debouncer.Trigger()
	case ChangeReplaced:
		// a draft recovered with a temporary id has never reached the backend
		if change.Draft != nil && !change.Draft.IsPersisted() {
			a.debouncer.Trigger()
		}
	case ChangeCleared:
		a.debouncer.Cancel()
	}
}

func (a *AutoSaver) save() {
	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()

	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.autosave")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	a.writer.mu.Lock()
	defer a.writer.mu.Unlock()

	draft, ok := a.store.Draft()
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("draft.id", draft.ID))

	start := time.Now()
	var id string
	id, err = a.writer.persist(ctx, draft)
	a.metrics.HistogramAutosaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.CounterAutosaveFailures.Inc()
		log.Errorf("autosave draft %s of user %s: %s", draft.ID, draft.UserID, err)
		return
	}
	a.metrics.CounterAutosaves.Inc()

	if id != draft.ID && !a.store.AdoptID(draft.ID, id) {
		log.Debugf("autosave: draft changed while saving, backend id %s not adopted", id)
	}
}

func (a *AutoSaver) Pending() bool {
	return a.debouncer.Pending()
}

func (a *AutoSaver) Cancel() {
	a.debouncer.Cancel()
}

// Flush saves a pending change immediately.
func (a *AutoSaver) Flush() bool {
	return a.debouncer.Flush()
}

func (a *AutoSaver) Close() {
	a.debouncer.Close()
}
