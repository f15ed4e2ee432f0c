//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"
	"time"

	"github.com/2beens/liftlog/internal/gymstats/exercises"
	"github.com/2beens/liftlog/internal/gymstats/sessions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) waitPersisted(ctx context.Context, token, deviceID string) sessions.Session {
	t := s.T()
	var draft sessions.Session
	require.Eventually(t, func() bool {
		status, body := s.do(ctx, t, token, deviceID, http.MethodGet, "/workout/draft", nil)
		if status != http.StatusOK {
			return false
		}
		draft = decode[sessions.Session](t, body)
		return draft.IsPersisted()
	}, 5*time.Second, 50*time.Millisecond)
	return draft
}

func (s *IntegrationTestSuite) sessionRows(sessionID string) (sessionCount, entryCount int) {
	t := s.T()
	require.NoError(t, s.DB.QueryRow(
		`SELECT count(*) FROM workout_session WHERE id::text = $1`, sessionID,
	).Scan(&sessionCount))
	require.NoError(t, s.DB.QueryRow(
		`SELECT count(*) FROM workout_session_exercise WHERE session_id::text = $1`, sessionID,
	).Scan(&entryCount))
	return sessionCount, entryCount
}

func (s *IntegrationTestSuite) TestWorkoutLifecycle() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token := s.doLogin(ctx, t)
	const device = "phone"

	status, body := s.do(ctx, t, token, device, http.MethodPost, "/workout/exercises", exercises.Exercise{Name: "Back Squat"})
	require.Equal(t, http.StatusCreated, status, string(body))
	squat := decode[exercises.Exercise](t, body)

	// first workout: auto-saved, then finalized
	status, body = s.do(ctx, t, token, device, http.MethodPost, "/workout/draft/freeform",
		sessions.CreateFreeformRequest{Name: "Legs", Date: "2024-06-01"})
	require.Equal(t, http.StatusCreated, status, string(body))
	draft := decode[sessions.Session](t, body)
	assert.True(t, sessions.IsTempID(draft.ID))

	weight := 100.0
	status, body = s.do(ctx, t, token, device, http.MethodPost, "/workout/draft/exercises",
		sessions.AddExerciseRequest{ExerciseName: "back squat", Sets: 3, Reps: []int{5, 5, 5}, Weight: &weight})
	require.Equal(t, http.StatusCreated, status, string(body))
	added := decode[sessions.AddExerciseResponse](t, body)
	assert.Equal(t, squat.ID, added.Draft.Exercises[0].ExerciseID)

	persisted := s.waitPersisted(ctx, token, device)
	sessionCount, entryCount := s.sessionRows(persisted.ID)
	assert.Equal(t, 1, sessionCount)
	assert.Equal(t, 1, entryCount)

	status, body = s.do(ctx, t, token, device, http.MethodPost, "/workout/draft/finalize", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	finalized := decode[sessions.Session](t, body)
	assert.Equal(t, persisted.ID, finalized.ID)
	assert.True(t, finalized.IsCompleted())

	status, _ = s.do(ctx, t, token, device, http.MethodGet, "/workout/draft", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// second workout sees the first one as previous lift
	status, body = s.do(ctx, t, token, device, http.MethodPost, "/workout/draft/freeform",
		sessions.CreateFreeformRequest{Name: "Legs again", Date: "2024-06-08"})
	require.Equal(t, http.StatusCreated, status, string(body))
	status, body = s.do(ctx, t, token, device, http.MethodPost, "/workout/draft/exercises",
		sessions.AddExerciseRequest{ExerciseID: squat.ID, ExerciseName: squat.Name, Sets: 3, Reps: []int{5, 5, 5}})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(ctx, t, token, device, http.MethodGet, "/workout/draft/previous", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	previous := decode[sessions.PreviousLiftsResponse](t, body)
	require.Contains(t, previous.PreviousLifts, squat.ID)
	assert.Equal(t, finalized.ID, previous.PreviousLifts[squat.ID].SessionID)
	assert.Equal(t, []float64{100, 100, 100}, previous.PreviousLifts[squat.ID].Weights)

	second := s.waitPersisted(ctx, token, device)

	// another device is offered the saved session for that day
	status, body = s.do(ctx, t, token, "tablet", http.MethodGet, "/workout/start/freeform?date=2024-06-08", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	start := decode[sessions.StartResult](t, body)
	require.NotNil(t, start.Existing)
	assert.Equal(t, second.ID, start.Existing.ID)

	// abandoning removes the saved rows
	status, _ = s.do(ctx, t, token, device, http.MethodDelete, "/workout/draft", nil)
	assert.Equal(t, http.StatusNoContent, status)
	sessionCount, entryCount = s.sessionRows(second.ID)
	assert.Equal(t, 0, sessionCount)
	assert.Equal(t, 0, entryCount)

	status, body = s.do(ctx, t, token, device, http.MethodGet, "/workout/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[sessions.ListResponse](t, body)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, finalized.ID, list.Sessions[0].ID)
}
