package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/liftlog/internal/gymstats/events"
	"github.com/2beens/liftlog/internal/gymstats/programs"
	"github.com/2beens/liftlog/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

var (
	ErrProgramDayNotFound = errors.New("program day not found")
	ErrUnknownExercise    = errors.New("unknown exercise")
)

type programsRepo interface {
	Get(ctx context.Context, userID, id string) (*programs.Program, error)
}

type eventsRecorder interface {
	AddSessionStarted(ctx context.Context, sl events.SessionLifecycle) (int, error)
	AddSessionResumed(ctx context.Context, sl events.SessionLifecycle) (int, error)
	AddSessionFinished(ctx context.Context, sl events.SessionLifecycle) (int, error)
	AddSessionAbandoned(ctx context.Context, sl events.SessionLifecycle) (int, error)
}

type TrackerParams struct {
	UserID               string
	DeviceID             string
	Backend              Backend
	Catalog              catalog
	Programs             programsRepo
	Events               eventsRecorder
	Slot                 Slot
	AutosaveDelay        time.Duration
	PreviousLiftRowLimit int
	Metrics              *metrics.Manager
}

// Tracker is the workout session state of one user on one device.
type Tracker struct {
	userID   string
	deviceID string

	store      *DraftStore
	autosaver  *AutoSaver
	controller *Controller
	reconciler *Reconciler
	resolver   *PreviousLiftResolver
	watcher    *PreviousLiftWatcher

	slot     Slot
	backend  Backend
	catalog  catalog
	programs programsRepo
	events   eventsRecorder
	clock    func() time.Time
}

func NewTracker(params TrackerParams) *Tracker {
	store := NewDraftStore(params.UserID, params.Catalog)
	writer := NewWriter(store, params.Backend)
	autosaver := NewAutoSaver(store, writer, params.AutosaveDelay, params.Metrics)
	resolver := NewPreviousLiftResolver(params.Backend, params.PreviousLiftRowLimit)
	watcher := NewPreviousLiftWatcher(resolver)

	// slot first, so the device copy is current before anything else reacts
	store.Observe(NewSlotMirror(params.Slot))
	store.Observe(autosaver)
	store.Observe(watcher)

	return &Tracker{
		userID:     params.UserID,
		deviceID:   params.DeviceID,
		store:      store,
		autosaver:  autosaver,
		controller: NewController(store, writer, autosaver, params.Backend, params.Metrics),
		reconciler: NewReconciler(store, params.Slot, params.Backend),
		resolver:   resolver,
		watcher:    watcher,
		slot:       params.Slot,
		backend:    params.Backend,
		catalog:    params.Catalog,
		programs:   params.Programs,
		events:     params.Events,
		clock:      time.Now,
	}
}

func (t *Tracker) Store() *DraftStore {
	return t.store
}

// Recover adopts the draft left in the device slot by this user, e.g. after a restart.
func (t *Tracker) Recover(ctx context.Context) bool {
	return t.reconciler.restoreFromSlot(ctx, t.userID) != nil
}

func (t *Tracker) StartFreeform(ctx context.Context, today time.Time) (StartResult, error) {
	return t.reconciler.StartFreeform(ctx, today)
}

func (t *Tracker) InProgress(ctx context.Context) (*Session, error) {
	return t.reconciler.InProgress(ctx)
}

func (t *Tracker) CreateFreeform(ctx context.Context, name string, date time.Time) (Session, error) {
	if _, err := t.store.CreateFreeform(name, date); err != nil {
		return Session{}, err
	}
	draft, _ := t.store.Draft()
	t.record(ctx, events.EventTypeSessionStarted, draft)
	return draft, nil
}

func (t *Tracker) CreateFromProgramDay(ctx context.Context, programID string, weekNumber int, dayName string, date time.Time) (Session, error) {
	if t.userID == "" {
		return Session{}, ErrNoUser
	}

	program, err := t.programs.Get(ctx, t.userID, programID)
	if err != nil {
		return Session{}, fmt.Errorf("get program %s: %w", programID, err)
	}
	day, ok := program.FindDay(weekNumber, dayName)
	if !ok {
		return Session{}, ErrProgramDayNotFound
	}

	if _, err := t.store.CreateFromProgramDay(ProgramDayParams{
		ProgramID:  program.ID,
		WeekNumber: weekNumber,
		DayName:    day.Name,
		Template:   day.Exercises,
		TotalWeeks: program.TotalWeeks(),
		Structure:  program.Structure,
		Date:       date,
	}); err != nil {
		return Session{}, err
	}

	draft, _ := t.store.Draft()
	t.record(ctx, events.EventTypeSessionStarted, draft)
	return draft, nil
}

// Resume loads a session from the backend (in progress, or completed for editing) as the draft.
func (t *Tracker) Resume(ctx context.Context, sessionID string) (Session, error) {
	if t.userID == "" {
		return Session{}, ErrNoUser
	}

	session, err := t.backend.GetSession(ctx, t.userID, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if session == nil {
		return Session{}, ErrSessionNotFound
	}
	if err := t.store.ResumeExisting(*session); err != nil {
		return Session{}, err
	}

	draft, _ := t.store.Draft()
	t.record(ctx, events.EventTypeSessionResumed, draft)
	return draft, nil
}

// AddExercise appends an entry. Without an exercise id, the exercise is looked up by name.
func (t *Tracker) AddExercise(ctx context.Context, entry NewEntry) (string, error) {
	if entry.ExerciseID == "" {
		if strings.TrimSpace(entry.ExerciseName) == "" || t.catalog == nil {
			return "", ErrUnknownExercise
		}
		exercise, err := t.catalog.FindByName(ctx, t.userID, entry.ExerciseName)
		if err != nil {
			return "", fmt.Errorf("find exercise [%s]: %w", entry.ExerciseName, err)
		}
		if exercise == nil {
			return "", ErrUnknownExercise
		}
		entry.ExerciseID = exercise.ID
		entry.ExerciseName = exercise.Name
	}
	return t.store.AddExercise(entry)
}

func (t *Tracker) Finalize(ctx context.Context) (*Session, error) {
	finalized, err := t.controller.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	t.record(ctx, events.EventTypeSessionFinished, *finalized)
	return finalized, nil
}

func (t *Tracker) Abandon(ctx context.Context) error {
	abandoned, err := t.controller.Abandon(ctx)
	if abandoned != nil {
		t.record(ctx, events.EventTypeSessionAbandoned, *abandoned)
	}
	return err
}

func (t *Tracker) Resync(ctx context.Context) (bool, error) {
	return t.controller.Resync(ctx)
}

// PreviousLifts returns the background result when it is current, resolving synchronously otherwise.
func (t *Tracker) PreviousLifts(ctx context.Context) (map[string]PreviousLiftLog, error) {
	draft, ok := t.store.Draft()
	if !ok {
		return nil, ErrNoDraft
	}
	if result, ready := t.watcher.Result(); ready {
		return result, nil
	}
	return t.resolver.Resolve(ctx, draft)
}

// Flush saves a pending auto-save right away.
func (t *Tracker) Flush() bool {
	return t.autosaver.Flush()
}

func (t *Tracker) Close() {
	t.autosaver.Close()
	t.watcher.Close()
}

func (t *Tracker) record(ctx context.Context, eventType events.EventType, session Session) {
	if t.events == nil {
		return
	}

	sl := events.SessionLifecycle{
		UserID:      t.userID,
		SessionName: session.Name,
		SessionType: string(session.Type),
		Exercises:   len(session.Exercises),
		Timestamp:   t.clock(),
	}
	if session.IsPersisted() {
		sl.SessionID = session.ID
	}

	var err error
	switch eventType {
	case events.EventTypeSessionStarted:
		_, err = t.events.AddSessionStarted(ctx, sl)
	case events.EventTypeSessionResumed:
		_, err = t.events.AddSessionResumed(ctx, sl)
	case events.EventTypeSessionFinished:
		_, err = t.events.AddSessionFinished(ctx, sl)
	case events.EventTypeSessionAbandoned:
		_, err = t.events.AddSessionAbandoned(ctx, sl)
	}
	if err != nil {
		log.Errorf("tracker [%s]: record %s event: %s", t.deviceID, eventType, err)
	}
}
