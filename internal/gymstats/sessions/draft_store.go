package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/gymstats/exercises"
	"github.com/2beens/liftlog/internal/gymstats/programs"

	log "github.com/sirupsen/logrus"
)

type ChangeKind int

const (
	// ChangeMutated is a user edit of the draft; it schedules an auto-save.
	ChangeMutated ChangeKind = iota
	// ChangeReplaced is a wholesale adoption (resume, reload recovery, re-sync).
	ChangeReplaced
	// ChangeAdopted is the temporary id being replaced by the backend id.
	ChangeAdopted
	// ChangeCleared means the draft is gone; Change.Draft is nil.
	ChangeCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeMutated:
		return "mutated"
	case ChangeReplaced:
		return "replaced"
	case ChangeAdopted:
		return "adopted"
	case ChangeCleared:
		return "cleared"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

type Change struct {
	Kind  ChangeKind
	Draft *Session
}

// Observer is notified synchronously, in mutation order, while the store is locked.
// Implementations must not call back into the store.
type Observer interface {
	DraftChanged(change Change)
}

type catalog interface {
	FindByName(ctx context.Context, userID, name string) (*exercises.Exercise, error)
}

type NewEntry struct {
	ExerciseID   string
	ExerciseName string
	Sets         int
	Reps         []int
	Weight       *float64
	Notes        string
}

// EntryUpdate is a partial update; nil fields are left untouched.
type EntryUpdate struct {
	Sets              *int            `json:"sets,omitempty"`
	Reps              []int           `json:"reps,omitempty"`
	Weight            *float64        `json:"weight,omitempty"`
	ClearWeight       bool            `json:"clear_weight,omitempty"`
	WeightPerSet      map[int]float64 `json:"weight_per_set,omitempty"`
	ClearWeightPerSet bool            `json:"clear_weight_per_set,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
}

type ProgramDayParams struct {
	ProgramID  string
	WeekNumber int
	DayName    string
	Template   []programs.DayExercise
	TotalWeeks int
	Structure  programs.Structure
	Date       time.Time
}

// DraftStore holds the workout currently being built for a single user.
type DraftStore struct {
	userID  string
	catalog catalog
	clock   func() time.Time

	mu        sync.Mutex
	draft     *Session
	editing   bool
	observers []Observer
}

func NewDraftStore(userID string, catalog catalog) *DraftStore {
	return &DraftStore{
		userID:  userID,
		catalog: catalog,
		clock:   time.Now,
	}
}

func (s *DraftStore) UserID() string {
	return s.userID
}

func (s *DraftStore) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Draft returns a copy of the current draft.
func (s *DraftStore) Draft() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return Session{}, false
	}
	return s.draft.Clone(), true
}

// IsEditing reports whether the draft was adopted from an existing session.
func (s *DraftStore) IsEditing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

func (s *DraftStore) CreateFreeform(name string, date time.Time) (string, error) {
	if s.userID == "" {
		return "", ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = &Session{
		ID:          NewTempID(),
		UserID:      s.userID,
		Type:        SessionTypeFreeform,
		Name:        name,
		SessionDate: DateOnly(date),
		CreatedAt:   s.clock(),
		Exercises:   []Entry{},
	}
	s.editing = false
	s.notify(ChangeMutated)
	return s.draft.ID, nil
}

func (s *DraftStore) CreateFromProgramDay(params ProgramDayParams) (string, error) {
	if s.userID == "" {
		return "", ErrNoUser
	}

	entries := make([]Entry, 0, len(params.Template))
	for _, t := range params.Template {
		sets, reps := normalizeSetsReps(t.Sets, t.Reps)
		entries = append(entries, Entry{
			ID:           NewTempID(),
			ExerciseID:   t.ExerciseID,
			ExerciseName: t.ExerciseName,
			Sets:         sets,
			Reps:         reps,
			Alternatives: append([]string(nil), t.Alternatives...),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = &Session{
		ID:          NewTempID(),
		UserID:      s.userID,
		Type:        SessionTypeProgram,
		Name:        ProgramSessionName(params.Structure, params.TotalWeeks, params.WeekNumber, params.DayName),
		ProgramID:   params.ProgramID,
		WeekNumber:  params.WeekNumber,
		DayName:     params.DayName,
		SessionDate: DateOnly(params.Date),
		CreatedAt:   s.clock(),
		Exercises:   entries,
	}
	s.editing = false
	s.notify(ChangeMutated)
	return s.draft.ID, nil
}

// ProgramSessionName derives the display name of a program session. Week numbers mean
// nothing for cyclical structures, so those (and single-week programs) use the day name only.
func ProgramSessionName(structure programs.Structure, totalWeeks, weekNumber int, dayName string) string {
	if structure == programs.StructureRotating || structure == programs.StructureBlock || totalWeeks == 1 {
		return dayName
	}
	return fmt.Sprintf("Week %d – %s", weekNumber, dayName)
}

// ResumeExisting adopts a fully formed session as the draft and marks it as being edited.
func (s *DraftStore) ResumeExisting(session Session) error {
	if s.userID == "" {
		return ErrNoUser
	}
	if session.UserID != s.userID {
		return ErrForeignSession
	}

	adopted := session.Clone()
	if adopted.Exercises == nil {
		adopted.Exercises = []Entry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = &adopted
	s.editing = true
	s.notify(ChangeReplaced)
	return nil
}

func (s *DraftStore) AddExercise(params NewEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return "", ErrNoDraft
	}

	sets, reps := normalizeSetsReps(params.Sets, params.Reps)
	entry := Entry{
		ID:           NewTempID(),
		ExerciseID:   params.ExerciseID,
		ExerciseName: params.ExerciseName,
		Sets:         sets,
		Reps:         reps,
		Notes:        params.Notes,
	}
	if params.Weight != nil {
		w := *params.Weight
		entry.Weight = &w
	}

	s.draft.Exercises = append(s.draft.Exercises, entry)
	s.notify(ChangeMutated)
	return entry.ID, nil
}

// UpdateExercise merges update into the entry with the given entry id (not catalog id).
func (s *DraftStore) UpdateExercise(entryID string, update EntryUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return false
	}
	i := s.draft.entryIndex(entryID)
	if i < 0 {
		return false
	}

	e := s.draft.Exercises[i]
	// reps win over sets when both are given
	switch {
	case update.Reps != nil:
		e.Sets, e.Reps = normalizeSetsReps(0, update.Reps)
	case update.Sets != nil:
		e.Sets = max(*update.Sets, 0)
		e.Reps = resizeReps(e.Reps, e.Sets)
	}

	if update.ClearWeight {
		e.Weight = nil
	} else if update.Weight != nil {
		w := *update.Weight
		e.Weight = &w
	}

	if update.ClearWeightPerSet {
		e.WeightPerSet = nil
	}
	if update.WeightPerSet != nil {
		overrides := make(map[int]float64, len(e.WeightPerSet)+len(update.WeightPerSet))
		for k, v := range e.WeightPerSet {
			overrides[k] = v
		}
		for k, v := range update.WeightPerSet {
			if e.Weight != nil && *e.Weight == v {
				delete(overrides, k)
				continue
			}
			overrides[k] = v
		}
		e.WeightPerSet = overrides
	}
	e.WeightPerSet = trimWeightOverrides(e.WeightPerSet, e.Sets)

	if update.Notes != nil {
		e.Notes = *update.Notes
	}

	s.draft.Exercises[i] = e
	s.notify(ChangeMutated)
	return true
}

func (s *DraftStore) RemoveExercise(entryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return false
	}
	i := s.draft.entryIndex(entryID)
	if i < 0 {
		return false
	}

	s.draft.Exercises = slices.Delete(s.draft.Exercises, i, i+1)
	s.notify(ChangeMutated)
	return true
}

// SwapAlternative switches the entry to one of its alternatives, or back to the
// original exercise when targetName is the recorded original. Only one level of
// undo is kept. Failed catalog lookups are logged and leave the entry unchanged.
func (s *DraftStore) SwapAlternative(ctx context.Context, entryID, targetName string) bool {
	s.mu.Lock()
	if s.draft == nil {
		s.mu.Unlock()
		return false
	}
	i := s.draft.entryIndex(entryID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}

	e := s.draft.Exercises[i]
	if e.IsSwapped() && targetName == e.OriginalExerciseName {
		e.ExerciseID = e.OriginalExerciseID
		e.ExerciseName = e.OriginalExerciseName
		e.OriginalExerciseID = ""
		e.OriginalExerciseName = ""
		s.draft.Exercises[i] = e
		s.notify(ChangeMutated)
		s.mu.Unlock()
		return true
	}

	if !slices.Contains(e.Alternatives, targetName) {
		s.mu.Unlock()
		log.Warnf("swap alternative: [%s] is not an alternative of entry %s", targetName, entryID)
		return false
	}
	draftID := s.draft.ID
	s.mu.Unlock()

	// catalog lookup happens unlocked, the draft may change meanwhile
	alternative, err := s.lookupAlternative(ctx, targetName)
	if err != nil {
		log.Errorf("swap alternative: lookup [%s] in catalog: %s", targetName, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil || s.draft.ID != draftID {
		return false
	}
	i = s.draft.entryIndex(entryID)
	if i < 0 {
		return false
	}

	e = s.draft.Exercises[i]
	if !e.IsSwapped() {
		e.OriginalExerciseID = e.ExerciseID
		e.OriginalExerciseName = e.ExerciseName
	}
	e.ExerciseID = alternative.ID
	e.ExerciseName = alternative.Name
	s.draft.Exercises[i] = e
	s.notify(ChangeMutated)
	return true
}

func (s *DraftStore) lookupAlternative(ctx context.Context, name string) (*exercises.Exercise, error) {
	if s.catalog == nil {
		return nil, errors.New("no exercise catalog")
	}
	ex, err := s.catalog.FindByName(ctx, s.userID, name)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, exercises.ErrExerciseNotFound
	}
	return ex, nil
}

func (s *DraftStore) UpdateSessionDate(date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil {
		return ErrNoDraft
	}
	s.draft.SessionDate = DateOnly(date)
	s.notify(ChangeMutated)
	return nil
}

// Clear discards the draft. Observers drop the local copy and pending auto-saves.
func (s *DraftStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft = nil
	s.editing = false
	s.notify(ChangeCleared)
}

// ClearIf clears the draft only while it is still the session with the given id.
func (s *DraftStore) ClearIf(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil || s.draft.ID != id {
		return false
	}
	s.draft = nil
	s.editing = false
	s.notify(ChangeCleared)
	return true
}

// AdoptID replaces the temporary id with the backend id, but only if the draft is still
// the same logical session. Returns false when the draft changed underneath.
func (s *DraftStore) AdoptID(tempID, realID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil || s.draft.ID != tempID || !IsTempID(tempID) {
		return false
	}
	s.draft.ID = realID
	s.notify(ChangeAdopted)
	return true
}

// Replace swaps in a fresh copy of the same session, last writer wins.
func (s *DraftStore) Replace(session Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft == nil || s.draft.ID != session.ID || session.UserID != s.userID {
		return false
	}
	replaced := session.Clone()
	s.draft = &replaced
	s.notify(ChangeReplaced)
	return true
}

// notify must be called with s.mu held.
func (s *DraftStore) notify(kind ChangeKind) {
	change := Change{Kind: kind}
	if s.draft != nil {
		snapshot := s.draft.Clone()
		change.Draft = &snapshot
	}
	for _, o := range s.observers {
		o.DraftChanged(change)
	}
}
