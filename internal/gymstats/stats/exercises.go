package stats

import (
	"context"
	"sort"
	"time"

	"github.com/2beens/liftlog/internal/gymstats/sessions"
	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

const DefaultHistoryRows = 500

// ExerciseHistory summarises how an exercise was lifted, one entry per training day, newest first.
type ExerciseHistory struct {
	ExerciseID string     `json:"exerciseId"`
	Days       []DayStats `json:"days"`
}

type DayStats struct {
	Date      time.Time `json:"date"`
	Sets      int       `json:"sets"`
	AvgReps   float64   `json:"avgReps"`
	AvgWeight float64   `json:"avgWeight"`
	TopWeight float64   `json:"topWeight"`
	// Volume is the sum of reps times weight over all sets.
	Volume float64 `json:"volume"`
}

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=stats_test

type historySource interface {
	History(ctx context.Context, params sessions.HistoryParams) ([]sessions.PreviousLiftLog, error)
}

type Exercises struct {
	history historySource
	rows    int
}

func NewExercisesStats(history historySource, rows int) *Exercises {
	if rows <= 0 {
		rows = DefaultHistoryRows
	}
	return &Exercises{
		history: history,
		rows:    rows,
	}
}

func (a *Exercises) ExerciseHistory(
	ctx context.Context,
	userID, exerciseID string,
) (_ *ExerciseHistory, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.gymstats.exerciseHistory")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	logs, err := a.history.History(ctx, sessions.HistoryParams{
		UserID:      userID,
		ExerciseIDs: []string{exerciseID},
		Limit:       a.rows,
	})
	if err != nil {
		return nil, err
	}

	return &ExerciseHistory{
		ExerciseID: exerciseID,
		Days:       summariseDays(logs),
	}, nil
}

type dayTotals struct {
	sets      int
	reps      int
	weightSum float64
	topWeight float64
	volume    float64
}

func summariseDays(logs []sessions.PreviousLiftLog) []DayStats {
	day2totals := make(map[time.Time]*dayTotals)
	for _, l := range logs {
		day := sessions.DateOnly(l.SessionDate)
		totals, ok := day2totals[day]
		if !ok {
			totals = &dayTotals{}
			day2totals[day] = totals
		}
		for i, reps := range l.Reps {
			var weight float64
			if i < len(l.Weights) {
				weight = l.Weights[i]
			}
			totals.sets++
			totals.reps += reps
			totals.weightSum += weight
			totals.volume += float64(reps) * weight
			totals.topWeight = max(totals.topWeight, weight)
		}
	}

	days := make([]DayStats, 0, len(day2totals))
	for day, totals := range day2totals {
		if totals.sets == 0 {
			continue
		}
		days = append(days, DayStats{
			Date:      day,
			Sets:      totals.sets,
			AvgReps:   float64(totals.reps) / float64(totals.sets),
			AvgWeight: totals.weightSum / float64(totals.sets),
			TopWeight: totals.topWeight,
			Volume:    totals.volume,
		})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})

	return days
}
