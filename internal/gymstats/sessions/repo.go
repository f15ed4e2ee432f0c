package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const sessionColumns = `
	s.id::text, s.user_id::text, s.type, COALESCE(s.name, ''), COALESCE(s.program_id, ''),
	COALESCE(s.week_number, 0), COALESCE(s.day_name, ''), s.session_date, s.created_at, s.completed_at`

// Repo is the Postgres Backend.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) InsertSession(ctx context.Context, session Session) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.insert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO workout_session
			(user_id, type, name, program_id, week_number, day_name, session_date, created_at, completed_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, 0), NULLIF($6, ''), $7, $8, $9)
		RETURNING id::text
	`,
		session.UserID, session.Type, session.Name, session.ProgramID, session.WeekNumber, session.DayName,
		DateOnly(session.SessionDate), session.CreatedAt, session.CompletedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", id))

	if err = insertEntries(ctx, tx, id, session.UserID, session.Exercises); err != nil {
		return "", err
	}

	return id, nil
}

// UpdateSession rewrites the session row and replaces every child row,
// so saving the same draft twice leaves the same rows behind.
func (r *Repo) UpdateSession(ctx context.Context, session Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", session.ID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE workout_session SET
			name = NULLIF($3, ''), program_id = NULLIF($4, ''), week_number = NULLIF($5, 0),
			day_name = NULLIF($6, ''), session_date = $7, completed_at = $8
		WHERE id::text = $1 AND user_id::text = $2
	`,
		session.ID, session.UserID, session.Name, session.ProgramID, session.WeekNumber, session.DayName,
		DateOnly(session.SessionDate), session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	if _, err = tx.Exec(ctx, `DELETE FROM workout_session_exercise WHERE session_id::text = $1`, session.ID); err != nil {
		return fmt.Errorf("delete session exercises: %w", err)
	}

	return insertEntries(ctx, tx, session.ID, session.UserID, session.Exercises)
}

func insertEntries(ctx context.Context, tx pgx.Tx, sessionID, userID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, e := range entries {
		weightPerSet, err := json.Marshal(e.WeightPerSet)
		if err != nil {
			return fmt.Errorf("marshal weight per set of entry %s: %w", e.ID, err)
		}
		if e.WeightPerSet == nil {
			weightPerSet = []byte("{}")
		}
		alternatives := e.Alternatives
		if alternatives == nil {
			alternatives = []string{}
		}

		batch.Queue(`
			INSERT INTO workout_session_exercise
				(session_id, user_id, position, entry_id, exercise_id, exercise_name, sets, reps, weight,
				 weight_per_set, notes, alternatives, original_exercise_id, original_exercise_name)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, NULLIF($13, ''), NULLIF($14, ''))
		`,
			sessionID, userID, i, e.ID, e.ExerciseID, e.ExerciseName, e.Sets, toInt32s(e.Reps), e.Weight,
			weightPerSet, e.Notes, alternatives, e.OriginalExerciseID, e.OriginalExerciseName,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert session exercise: %w", err)
		}
	}
	return results.Close()
}

// DeleteSession removes the child rows, then the session row. Missing rows are not an error.
func (r *Repo) DeleteSession(ctx context.Context, userID, sessionID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", sessionID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		DELETE FROM workout_session_exercise WHERE session_id::text = $1 AND user_id::text = $2
	`, sessionID, userID); err != nil {
		return fmt.Errorf("delete session exercises: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		DELETE FROM workout_session WHERE id::text = $1 AND user_id::text = $2
	`, sessionID, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

func (r *Repo) GetSession(ctx context.Context, userID, sessionID string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", sessionID))

	return r.queryOne(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_session s
		WHERE s.user_id::text = $1 AND s.id::text = $2
	`, userID, sessionID)
}

func (r *Repo) LatestFreeformOn(ctx context.Context, userID string, date time.Time) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.latest_freeform")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.queryOne(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_session s
		WHERE s.user_id::text = $1 AND s.type = 'freeform' AND s.session_date = $2
		ORDER BY s.created_at DESC
		LIMIT 1
	`, userID, DateOnly(date))
}

func (r *Repo) LatestInProgress(ctx context.Context, userID string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.latest_in_progress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return r.queryOne(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_session s
		WHERE s.user_id::text = $1 AND s.completed_at IS NULL
		ORDER BY s.created_at DESC
		LIMIT 1
	`, userID)
}

func (r *Repo) ListCompleted(ctx context.Context, userID string, limit int) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.list_completed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("limit", limit))

	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_session s
		WHERE s.user_id::text = $1 AND s.completed_at IS NOT NULL
		ORDER BY s.session_date DESC, s.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions [query]: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions [rows]: %w", err)
	}
	if len(sessions) == 0 {
		return []Session{}, nil
	}

	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	entries, err := r.entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Exercises = entries[sessions[i].ID]
		if sessions[i].Exercises == nil {
			sessions[i].Exercises = []Entry{}
		}
	}

	return sessions, nil
}

// History returns log rows of completed sessions only, newest first.
func (r *Repo) History(ctx context.Context, params HistoryParams) (_ []PreviousLiftLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.sessions.history")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("exercises", len(params.ExerciseIDs)),
		attribute.Int("limit", params.Limit),
	)

	if len(params.ExerciseIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT
			e.exercise_id, e.sets, e.reps, e.weight, e.weight_per_set,
			s.id::text, s.session_date, COALESCE(s.name, ''), COALESCE(s.program_id, ''), COALESCE(s.day_name, ''),
			s.created_at
		FROM workout_session_exercise e
		JOIN workout_session s ON s.id = e.session_id
		WHERE e.user_id::text = $1
		  AND e.exercise_id = ANY($2)
		  AND s.completed_at IS NOT NULL
		  AND ($3::text = '' OR s.id::text <> $3::text)
		ORDER BY s.session_date DESC, s.created_at DESC, e.created_at DESC
		LIMIT $4
	`, params.UserID, params.ExerciseIDs, params.ExcludeSessionID, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("history [query]: %w", err)
	}
	defer rows.Close()

	var logs []PreviousLiftLog
	for rows.Next() {
		var (
			row          PreviousLiftLog
			entry        Entry
			reps         []int32
			weightPerSet []byte
		)
		if err := rows.Scan(
			&row.ExerciseID, &entry.Sets, &reps, &entry.Weight, &weightPerSet,
			&row.SessionID, &row.SessionDate, &row.SessionName, &row.ProgramID, &row.DayName,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history [rows scan]: %w", err)
		}
		if err := unmarshalWeightPerSet(weightPerSet, &entry); err != nil {
			return nil, err
		}
		row.Reps = fromInt32s(reps)
		row.Weights = entry.ResolvedWeights()
		logs = append(logs, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history [rows error]: %w", err)
	}

	return logs, nil
}

func (r *Repo) queryOne(ctx context.Context, query string, args ...any) (*Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session [query row]: %w", err)
	}

	entries, err := r.entries(ctx, []string{session.ID})
	if err != nil {
		return nil, err
	}
	session.Exercises = entries[session.ID]
	if session.Exercises == nil {
		session.Exercises = []Entry{}
	}

	return &session, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.Type, &s.Name, &s.ProgramID,
		&s.WeekNumber, &s.DayName, &s.SessionDate, &s.CreatedAt, &s.CompletedAt,
	)
	return s, err
}

// entries loads the entries of the given sessions, keyed by session id, in position order.
func (r *Repo) entries(ctx context.Context, sessionIDs []string) (map[string][]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			session_id::text, entry_id, exercise_id, exercise_name, sets, reps, weight, weight_per_set,
			COALESCE(notes, ''), alternatives, COALESCE(original_exercise_id, ''), COALESCE(original_exercise_name, '')
		FROM workout_session_exercise
		WHERE session_id::text = ANY($1)
		ORDER BY session_id, position
	`, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("session exercises [query]: %w", err)
	}
	defer rows.Close()

	entries := make(map[string][]Entry, len(sessionIDs))
	for rows.Next() {
		var (
			sessionID    string
			e            Entry
			reps         []int32
			weightPerSet []byte
		)
		if err := rows.Scan(
			&sessionID, &e.ID, &e.ExerciseID, &e.ExerciseName, &e.Sets, &reps, &e.Weight, &weightPerSet,
			&e.Notes, &e.Alternatives, &e.OriginalExerciseID, &e.OriginalExerciseName,
		); err != nil {
			return nil, fmt.Errorf("session exercises [rows scan]: %w", err)
		}
		if err := unmarshalWeightPerSet(weightPerSet, &e); err != nil {
			return nil, err
		}
		e.Reps = fromInt32s(reps)
		if len(e.Alternatives) == 0 {
			e.Alternatives = nil
		}
		entries[sessionID] = append(entries[sessionID], e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session exercises [rows error]: %w", err)
	}

	return entries, nil
}

func unmarshalWeightPerSet(data []byte, e *Entry) error {
	if len(data) == 0 {
		return nil
	}
	var overrides map[int]float64
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("unmarshal weight per set: %w", err)
	}
	if len(overrides) > 0 {
		e.WeightPerSet = overrides
	}
	return nil
}

func toInt32s(values []int) []int32 {
	converted := make([]int32, len(values))
	for i, v := range values {
		converted[i] = int32(v)
	}
	return converted
}

func fromInt32s(values []int32) []int {
	converted := make([]int, len(values))
	for i, v := range values {
		converted[i] = int(v)
	}
	return converted
}
