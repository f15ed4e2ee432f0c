package sessions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPreviousLiftRowLimit = 500
	previousLiftTimeout         = 10 * time.Second
)

type PreviousLiftResolver struct {
	backend  Backend
	rowLimit int
}

func NewPreviousLiftResolver(backend Backend, rowLimit int) *PreviousLiftResolver {
	if rowLimit <= 0 {
		rowLimit = DefaultPreviousLiftRowLimit
	}
	return &PreviousLiftResolver{
		backend:  backend,
		rowLimit: rowLimit,
	}
}

// Resolve finds the most relevant completed prior performance for every exercise
// in the session. Exercises without history are absent from the result.
func (r *PreviousLiftResolver) Resolve(ctx context.Context, session Session) (_ map[string]PreviousLiftLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessions.previous_lift.resolve")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	exerciseIDs := session.ExerciseIDs()
	span.SetAttributes(attribute.Int("exercises", len(exerciseIDs)))
	if len(exerciseIDs) == 0 {
		return map[string]PreviousLiftLog{}, nil
	}

	params := HistoryParams{
		UserID:      session.UserID,
		ExerciseIDs: exerciseIDs,
		Limit:       r.rowLimit,
	}
	if session.IsPersisted() {
		params.ExcludeSessionID = session.ID
	}

	logs, err := r.backend.History(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("previous lifts history: %w", err)
	}

	programID, dayName := previousLiftContext(session)
	return SelectPrevious(logs, programID, dayName), nil
}

func previousLiftContext(session Session) (programID, dayName string) {
	if session.Type != SessionTypeProgram {
		return "", ""
	}
	return session.ProgramID, session.DayName
}

// SelectPrevious picks one row per exercise: the newest row of the same program
// and day, else the newest row of the same program, else the newest row. Program
// matching only applies when programID is set.
func SelectPrevious(logs []PreviousLiftLog, programID, dayName string) map[string]PreviousLiftLog {
	sorted := slices.Clone(logs)
	slices.SortStableFunc(sorted, func(a, b PreviousLiftLog) int {
		if c := b.SessionDate.Compare(a.SessionDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	type candidates struct {
		sameDay, sameProgram, newest *PreviousLiftLog
	}
	byExercise := make(map[string]*candidates)
	for i := range sorted {
		row := &sorted[i]
		c, ok := byExercise[row.ExerciseID]
		if !ok {
			c = &candidates{newest: row}
			byExercise[row.ExerciseID] = c
		}
		if programID == "" || row.ProgramID != programID {
			continue
		}
		if c.sameProgram == nil {
			c.sameProgram = row
		}
		if c.sameDay == nil && row.DayName == dayName {
			c.sameDay = row
		}
	}

	selected := make(map[string]PreviousLiftLog, len(byExercise))
	for exerciseID, c := range byExercise {
		switch {
		case c.sameDay != nil:
			selected[exerciseID] = *c.sameDay
		case c.sameProgram != nil:
			selected[exerciseID] = *c.sameProgram
		default:
			selected[exerciseID] = *c.newest
		}
	}
	return selected
}

// PreviousLiftWatcher re-resolves previous lifts in the background whenever the
// draft's exercise set or program context changes. Results of a resolution that
// was overtaken by a newer change are dropped.
type PreviousLiftWatcher struct {
	resolver *PreviousLiftResolver

	mu         sync.Mutex
	key        string
	generation uint64
	result     map[string]PreviousLiftLog
	ready      bool
	closed     bool
	inFlight   sync.WaitGroup
}

func NewPreviousLiftWatcher(resolver *PreviousLiftResolver) *PreviousLiftWatcher {
	return &PreviousLiftWatcher{
		resolver: resolver,
	}
}

func previousLiftKey(session Session) string {
	programID, dayName := previousLiftContext(session)
	excluded := ""
	if session.IsPersisted() {
		excluded = session.ID
	}
	return strings.Join([]string{
		session.UserID, programID, dayName, excluded, strings.Join(session.ExerciseIDs(), ","),
	}, "|")
}

func (w *PreviousLiftWatcher) DraftChanged(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if change.Kind == ChangeCleared || change.Draft == nil {
		w.key = ""
		w.generation++
		w.result = nil
		w.ready = false
		return
	}

	key := previousLiftKey(*change.Draft)
	if key == w.key {
		return
	}
	w.key = key
	w.generation++
	w.ready = false

	generation := w.generation
	draft := change.Draft.Clone()
	w.inFlight.Add(1)
	go w.resolve(generation, draft)
}

func (w *PreviousLiftWatcher) resolve(generation uint64, draft Session) {
	defer w.inFlight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), previousLiftTimeout)
	defer cancel()

	result, err := w.resolver.Resolve(ctx, draft)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || generation != w.generation {
		log.Tracef("previous lifts: dropping stale result of generation %d", generation)
		return
	}
	if err != nil {
		log.Errorf("previous lifts: resolve for draft %s: %s", draft.ID, err)
		// next change of the exercise set retries
		w.key = ""
		return
	}
	w.result = result
	w.ready = true
}

// Result returns the latest resolution, and false while one is still running.
func (w *PreviousLiftWatcher) Result() (map[string]PreviousLiftLog, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.ready {
		return nil, false
	}
	result := make(map[string]PreviousLiftLog, len(w.result))
	for k, v := range w.result {
		result[k] = v
	}
	return result, true
}

// Close drops any running resolution and waits for it to return.
func (w *PreviousLiftWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.generation++
	w.mu.Unlock()

	w.inFlight.Wait()
}
