package sessions

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=backend_mocks_test.go -package=sessions

// Backend is the storage collaborator of the session core.
// "No rows" is reported as a nil result, never as an error.
type Backend interface {
	// InsertSession stores the session row and one child row per entry and returns the new id.
	InsertSession(ctx context.Context, session Session) (string, error)
	// UpdateSession rewrites the session row and replaces all of its child rows.
	UpdateSession(ctx context.Context, session Session) error
	// DeleteSession removes child rows, then the session row.
	DeleteSession(ctx context.Context, userID, sessionID string) error
	GetSession(ctx context.Context, userID, sessionID string) (*Session, error)
	// LatestFreeformOn returns the newest freeform session of the user on the given date.
	LatestFreeformOn(ctx context.Context, userID string, date time.Time) (*Session, error)
	// LatestInProgress returns the newest uncompleted session of any type.
	LatestInProgress(ctx context.Context, userID string) (*Session, error)
	ListCompleted(ctx context.Context, userID string, limit int) ([]Session, error)
	// History returns log rows of completed sessions for the given exercises, newest first.
	History(ctx context.Context, params HistoryParams) ([]PreviousLiftLog, error)
}

type HistoryParams struct {
	UserID           string
	ExerciseIDs      []string
	ExcludeSessionID string
	Limit            int
}

// PreviousLiftLog is a read-only projection of a past logged exercise.
type PreviousLiftLog struct {
	ExerciseID  string    `json:"exercise_id"`
	Reps        []int     `json:"reps"`
	Weights     []float64 `json:"weights"`
	SessionID   string    `json:"session_id"`
	SessionDate time.Time `json:"session_date"`
	SessionName string    `json:"session_name,omitempty"`
	ProgramID   string    `json:"program_id,omitempty"`
	DayName     string    `json:"day_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
