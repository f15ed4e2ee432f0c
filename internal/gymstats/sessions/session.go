package sessions

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tempIDPrefix = "temp-"

var (
	ErrSessionNotFound = errors.New("workout session not found")
	ErrNoDraft         = errors.New("no workout in progress")
	ErrNoUser          = errors.New("no authenticated user")
	ErrForeignSession  = errors.New("workout session belongs to another user")
)

type SessionType string

const (
	SessionTypeProgram  SessionType = "program"
	SessionTypeFreeform SessionType = "freeform"
)

func (t SessionType) IsValid() bool {
	return t == SessionTypeProgram || t == SessionTypeFreeform
}

// Session is a workout session. While it is being edited it is called the draft.
// ID is temporary (see IsTempID) until the first successful persist.
type Session struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Type        SessionType `json:"type"`
	Name        string      `json:"name,omitempty"`
	ProgramID   string      `json:"program_id,omitempty"`
	WeekNumber  int         `json:"week_number,omitempty"`
	DayName     string      `json:"day_name,omitempty"`
	SessionDate time.Time   `json:"session_date"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at"`
	Exercises   []Entry     `json:"exercises"`
}

// Entry is a logged exercise within a session.
// ExerciseName is a snapshot so history survives catalog renames.
type Entry struct {
	ID                   string          `json:"id"`
	ExerciseID           string          `json:"exercise_id"`
	ExerciseName         string          `json:"exercise_name"`
	Sets                 int             `json:"sets"`
	Reps                 []int           `json:"reps"`
	Weight               *float64        `json:"weight,omitempty"`
	WeightPerSet         map[int]float64 `json:"weight_per_set,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	Alternatives         []string        `json:"alternatives,omitempty"`
	OriginalExerciseID   string          `json:"original_exercise_id,omitempty"`
	OriginalExerciseName string          `json:"original_exercise_name,omitempty"`
}

// WeightAt resolves the weight of set i: per-set override, then default weight, then 0.
func (e Entry) WeightAt(i int) float64 {
	if w, ok := e.WeightPerSet[i]; ok {
		return w
	}
	if e.Weight != nil {
		return *e.Weight
	}
	return 0
}

// ResolvedWeights returns one weight per set.
func (e Entry) ResolvedWeights() []float64 {
	weights := make([]float64, e.Sets)
	for i := range weights {
		weights[i] = e.WeightAt(i)
	}
	return weights
}

func (e Entry) IsSwapped() bool {
	return e.OriginalExerciseName != ""
}

func (e Entry) clone() Entry {
	c := e
	c.Reps = append([]int(nil), e.Reps...)
	if e.Weight != nil {
		w := *e.Weight
		c.Weight = &w
	}
	if e.WeightPerSet != nil {
		c.WeightPerSet = make(map[int]float64, len(e.WeightPerSet))
		for k, v := range e.WeightPerSet {
			c.WeightPerSet[k] = v
		}
	}
	if e.Alternatives != nil {
		c.Alternatives = append([]string(nil), e.Alternatives...)
	}
	return c
}

// Clone returns a deep copy, safe to hand out of the draft store.
func (s Session) Clone() Session {
	c := s
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		c.CompletedAt = &completedAt
	}
	c.Exercises = make([]Entry, len(s.Exercises))
	for i, e := range s.Exercises {
		c.Exercises[i] = e.clone()
	}
	return c
}

func (s Session) IsCompleted() bool {
	return s.CompletedAt != nil
}

func (s Session) IsPersisted() bool {
	return s.ID != "" && !IsTempID(s.ID)
}

func (s Session) entryIndex(entryID string) int {
	for i := range s.Exercises {
		if s.Exercises[i].ID == entryID {
			return i
		}
	}
	return -1
}

// ExerciseIDs returns the distinct catalog exercise ids, sorted.
func (s Session) ExerciseIDs() []string {
	seen := make(map[string]bool, len(s.Exercises))
	ids := make([]string, 0, len(s.Exercises))
	for _, e := range s.Exercises {
		if e.ExerciseID == "" || seen[e.ExerciseID] {
			continue
		}
		seen[e.ExerciseID] = true
		ids = append(ids, e.ExerciseID)
	}
	sort.Strings(ids)
	return ids
}

func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// DateOnly strips the time of day, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// normalizeSetsReps keeps len(reps) == sets. When reps are given they win;
// otherwise reps are resized to sets by repeating the last value (or 0).
func normalizeSetsReps(sets int, reps []int) (int, []int) {
	if reps != nil {
		return len(reps), append([]int(nil), reps...)
	}
	if sets < 0 {
		sets = 0
	}
	return sets, resizeReps(nil, sets)
}

func resizeReps(reps []int, sets int) []int {
	if sets < 0 {
		sets = 0
	}
	resized := make([]int, sets)
	copy(resized, reps)
	fill := 0
	if len(reps) > 0 {
		fill = reps[len(reps)-1]
	}
	for i := len(reps); i < sets; i++ {
		resized[i] = fill
	}
	return resized
}

func trimWeightOverrides(overrides map[int]float64, sets int) map[int]float64 {
	if overrides == nil {
		return nil
	}
	trimmed := make(map[int]float64, len(overrides))
	for i, w := range overrides {
		if i >= 0 && i < sets {
			trimmed[i] = w
		}
	}
	if len(trimmed) == 0 {
		return nil
	}
	return trimmed
}
