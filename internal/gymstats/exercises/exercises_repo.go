package exercises

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrExerciseExists   = errors.New("exercise with that name already exists")
	ErrUnknownOwner     = errors.New("exercise owner does not exist")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, exercise Exercise) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.exercises.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if exercise.CreatedAt.IsZero() {
		exercise.CreatedAt = time.Now()
	}

	err = r.db.QueryRow(
		ctx,
		`INSERT INTO exercise
				(user_id, name, description, muscle_group, created_at)
				VALUES ($1, $2, $3, $4, $5)
			RETURNING id;`,
		exercise.UserID, exercise.Name, exercise.Description, exercise.MuscleGroup, exercise.CreatedAt,
	).Scan(&exercise.ID)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrExerciseExists
		}
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrUnknownOwner
		}
		return nil, fmt.Errorf("insert exercise: %w", err)
	}

	span.SetAttributes(attribute.String("exercise.id", exercise.ID))
	return &exercise, nil
}

func (r *Repo) Get(ctx context.Context, userID, id string) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.exercises.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	return r.scanOne(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), COALESCE(muscle_group, ''), created_at
		FROM exercise
		WHERE user_id = $1 AND id::text = $2`,
		userID, id,
	)
}

// FindByName looks the exercise up by its case-insensitive name.
func (r *Repo) FindByName(ctx context.Context, userID, name string) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.exercises.find_by_name")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("name", name))

	return r.scanOne(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), COALESCE(muscle_group, ''), created_at
		FROM exercise
		WHERE user_id = $1 AND lower(name) = lower($2)`,
		userID, name,
	)
}

func (r *Repo) scanOne(ctx context.Context, query string, args ...any) (*Exercise, error) {
	var e Exercise
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.UserID, &e.Name, &e.Description, &e.MuscleGroup, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("exercise [query row]: %w", err)
	}
	return &e, nil
}

func (r *Repo) List(ctx context.Context, userID string) (_ []Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.exercises.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`
			SELECT id, user_id, name, COALESCE(description, ''), COALESCE(muscle_group, ''), created_at
			FROM exercise
			WHERE user_id = $1
			ORDER BY lower(name)
		`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("exercises [query]: %w", err)
	}
	defer rows.Close()

	var list []Exercise
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.Description, &e.MuscleGroup, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("exercises [rows scan]: %w", err)
		}
		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exercises [rows error]: %w", err)
	}

	return list, nil
}
