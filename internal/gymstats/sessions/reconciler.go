package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

// StartResult tells the freeform entry flow what to do before creating a new draft.
// Restored is a draft recovered on this device and already active. Existing is a
// same-day session from the backend the user should be asked about; it is never adopted.
// Both nil means start fresh.
type StartResult struct {
	Restored *Session `json:"restored"`
	Existing *Session `json:"existing"`
}

type Reconciler struct {
	store   *DraftStore
	slot    Slot
	backend Backend
}

func NewReconciler(store *DraftStore, slot Slot, backend Backend) *Reconciler {
	return &Reconciler{
		store:   store,
		slot:    slot,
		backend: backend,
	}
}

// StartFreeform runs the start-up checks of the freeform flow for the given calendar day.
func (r *Reconciler) StartFreeform(ctx context.Context, today time.Time) (_ StartResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.reconciler.start_freeform")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	userID := r.store.UserID()
	if userID == "" {
		return StartResult{}, ErrNoUser
	}

	if draft, ok := r.store.Draft(); ok {
		return StartResult{Restored: &draft}, nil
	}

	if restored := r.restoreFromSlot(ctx, userID); restored != nil {
		return StartResult{Restored: restored}, nil
	}

	existing, err := r.backend.LatestFreeformOn(ctx, userID, DateOnly(today))
	if err != nil {
		return StartResult{}, fmt.Errorf("latest freeform session: %w", err)
	}
	return StartResult{Existing: existing}, nil
}

func (r *Reconciler) restoreFromSlot(ctx context.Context, userID string) *Session {
	data, err := r.slot.Load(ctx)
	if err != nil {
		log.Errorf("reconciler: load draft slot: %s", err)
		return nil
	}
	if data == nil {
		return nil
	}

	draft, ok := DecodeDraft(data)
	if !ok || draft.UserID != userID {
		log.Debugf("reconciler: discarding unusable local draft for user %s", userID)
		if err := r.slot.Clear(ctx); err != nil {
			log.Errorf("reconciler: clear draft slot: %s", err)
		}
		return nil
	}

	if err := r.store.ResumeExisting(*draft); err != nil {
		log.Errorf("reconciler: adopt local draft %s: %s", draft.ID, err)
		return nil
	}
	return draft
}

// InProgress returns the newest uncompleted session of any type, or nil.
func (r *Reconciler) InProgress(ctx context.Context) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.reconciler.in_progress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	userID := r.store.UserID()
	if userID == "" {
		return nil, ErrNoUser
	}

	session, err := r.backend.LatestInProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest in-progress session: %w", err)
	}
	return session, nil
}
