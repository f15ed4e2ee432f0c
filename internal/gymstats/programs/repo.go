package programs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// List returns the user's programs without their weeks.
func (r *Repo) List(ctx context.Context, userID string) (_ []Program, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.programs.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`
			SELECT id, user_id, name, COALESCE(description, ''), structure, created_at
			FROM workout_program
			WHERE user_id = $1
			ORDER BY created_at DESC
		`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("programs [query]: %w", err)
	}
	defer rows.Close()

	var list []Program
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Structure, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("programs [rows scan]: %w", err)
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("programs [rows error]: %w", err)
	}

	return list, nil
}

// Get returns the program with all weeks, days and template exercises, in order.
func (r *Repo) Get(ctx context.Context, userID, id string) (_ *Program, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.programs.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	var p Program
	err = r.db.QueryRow(
		ctx,
		`
			SELECT id, user_id, name, COALESCE(description, ''), structure, created_at
			FROM workout_program
			WHERE user_id = $1 AND id::text = $2
		`,
		userID, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Structure, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("program [query row]: %w", err)
	}

	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				w.id, w.week_number,
				d.id, d.position, d.name, d.is_rest_day,
				de.exercise_id, de.exercise_name, de.sets, de.reps, de.alternatives
			FROM workout_week w
			JOIN workout_day d ON d.week_id = w.id
			LEFT JOIN workout_day_exercise de ON de.day_id = d.id
			WHERE w.program_id = $1
			ORDER BY w.week_number, d.position, de.position
		`,
		p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("program weeks [query]: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			weekID, dayID      string
			weekNumber, dayPos int
			dayName            string
			isRest             bool
			exID, exName       *string
			sets               *int
			reps               []int32
			alternatives       []string
		)
		if err := rows.Scan(
			&weekID, &weekNumber,
			&dayID, &dayPos, &dayName, &isRest,
			&exID, &exName, &sets, &reps, &alternatives,
		); err != nil {
			return nil, fmt.Errorf("program weeks [rows scan]: %w", err)
		}

		if len(p.Weeks) == 0 || p.Weeks[len(p.Weeks)-1].ID != weekID {
			p.Weeks = append(p.Weeks, Week{ID: weekID, WeekNumber: weekNumber})
		}
		week := &p.Weeks[len(p.Weeks)-1]
		if len(week.Days) == 0 || week.Days[len(week.Days)-1].ID != dayID {
			week.Days = append(week.Days, Day{ID: dayID, Position: dayPos, Name: dayName, IsRestDay: isRest})
		}
		day := &week.Days[len(week.Days)-1]

		if exID == nil {
			continue
		}
		de := DayExercise{
			ExerciseID:   *exID,
			Alternatives: alternatives,
		}
		if exName != nil {
			de.ExerciseName = *exName
		}
		if sets != nil {
			de.Sets = *sets
		}
		for _, rep := range reps {
			de.Reps = append(de.Reps, int(rep))
		}
		day.Exercises = append(day.Exercises, de)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("program weeks [rows error]: %w", err)
	}

	return &p, nil
}

// Add stores the program with its whole week/day/template tree in one transaction.
func (r *Repo) Add(ctx context.Context, program Program) (_ *Program, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.gymstats.programs.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if !program.Structure.IsValid() {
		return nil, fmt.Errorf("invalid program structure: %q", program.Structure)
	}
	if program.CreatedAt.IsZero() {
		program.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
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

	if err = tx.QueryRow(
		ctx,
		`INSERT INTO workout_program (user_id, name, description, structure, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		program.UserID, program.Name, program.Description, program.Structure, program.CreatedAt,
	).Scan(&program.ID); err != nil {
		return nil, fmt.Errorf("insert program: %w", err)
	}

	for wi := range program.Weeks {
		week := &program.Weeks[wi]
		if err = tx.QueryRow(
			ctx,
			`INSERT INTO workout_week (program_id, week_number) VALUES ($1, $2) RETURNING id`,
			program.ID, week.WeekNumber,
		).Scan(&week.ID); err != nil {
			return nil, fmt.Errorf("insert week %d: %w", week.WeekNumber, err)
		}

		for di := range week.Days {
			day := &week.Days[di]
			day.Position = di
			if err = tx.QueryRow(
				ctx,
				`INSERT INTO workout_day (week_id, position, name, is_rest_day) VALUES ($1, $2, $3, $4) RETURNING id`,
				week.ID, day.Position, day.Name, day.IsRestDay,
			).Scan(&day.ID); err != nil {
				return nil, fmt.Errorf("insert day [%s]: %w", day.Name, err)
			}

			for ei, de := range day.Exercises {
				alternatives := de.Alternatives
				if alternatives == nil {
					alternatives = []string{}
				}
				if _, err = tx.Exec(
					ctx,
					`INSERT INTO workout_day_exercise
						(day_id, position, exercise_id, exercise_name, sets, reps, alternatives)
						VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					day.ID, ei, de.ExerciseID, de.ExerciseName, de.Sets, de.Reps, alternatives,
				); err != nil {
					return nil, fmt.Errorf("insert day exercise [%s]: %w", de.ExerciseName, err)
				}
			}
		}
	}

	return &program, nil
}
