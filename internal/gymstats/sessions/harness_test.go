package sessions

import (
	"testing"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 6, 3, 17, 30, 0, 0, time.UTC)

// harness wires a draft store to the write path the same way a Tracker does,
// with the auto-save timer under test control.
type harness struct {
	store      *DraftStore
	slot       *MemorySlot
	writer     *Writer
	autosaver  *AutoSaver
	timers     *fakeTimers
	controller *Controller
	metrics    *metrics.Manager
}

func newHarness(t *testing.T, backend Backend) *harness {
	t.Helper()

	store := NewDraftStore("u1", nil)
	store.clock = func() time.Time { return testNow }
	slot := &MemorySlot{}
	metricsManager := metrics.NewTestManager()

	writer := NewWriter(store, backend)
	autosaver := NewAutoSaver(store, writer, time.Second, metricsManager)
	timers := &fakeTimers{}
	autosaver.debouncer.afterFunc = timers.afterFunc
	t.Cleanup(autosaver.Close)

	controller := NewController(store, writer, autosaver, backend, metricsManager)
	controller.clock = func() time.Time { return testNow.Add(time.Hour) }

	store.Observe(NewSlotMirror(slot))
	store.Observe(autosaver)

	return &harness{
		store:      store,
		slot:       slot,
		writer:     writer,
		autosaver:  autosaver,
		timers:     timers,
		controller: controller,
		metrics:    metricsManager,
	}
}

func (h *harness) draft(t *testing.T) Session {
	t.Helper()
	draft, ok := h.store.Draft()
	require.True(t, ok, "expected a draft")
	return draft
}

func (h *harness) slotDraft(t *testing.T) *Session {
	t.Helper()
	data, err := h.slot.Load(t.Context())
	require.NoError(t, err)
	if data == nil {
		return nil
	}
	draft, ok := DecodeDraft(data)
	require.True(t, ok)
	return draft
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}
