package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds every table the service uses. Statements are idempotent.
const Schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS app_user (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exercise (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	description  TEXT,
	muscle_group TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_exercise_user_name ON exercise (user_id, lower(name));

CREATE TABLE IF NOT EXISTS workout_program (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id     UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	description TEXT,
	structure   TEXT NOT NULL DEFAULT 'weekly' CHECK (structure IN ('weekly', 'rotating', 'block', 'frequency')),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workout_week (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	program_id  UUID NOT NULL REFERENCES workout_program(id) ON DELETE CASCADE,
	week_number INT NOT NULL CHECK (week_number >= 1),
	UNIQUE (program_id, week_number)
);

CREATE TABLE IF NOT EXISTS workout_day (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	week_id     UUID NOT NULL REFERENCES workout_week(id) ON DELETE CASCADE,
	position    INT NOT NULL,
	name        TEXT NOT NULL,
	is_rest_day BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS workout_day_exercise (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	day_id        UUID NOT NULL REFERENCES workout_day(id) ON DELETE CASCADE,
	position      INT NOT NULL,
	exercise_id   TEXT NOT NULL,
	exercise_name TEXT NOT NULL,
	sets          INT NOT NULL,
	reps          INT[] NOT NULL,
	alternatives  TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS workout_session (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id      UUID NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
	type         TEXT NOT NULL CHECK (type IN ('program', 'freeform')),
	name         TEXT,
	program_id   TEXT,
	week_number  INT,
	day_name     TEXT,
	session_date DATE NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS ix_workout_session_user_date ON workout_session (user_id, session_date DESC, created_at DESC);

CREATE TABLE IF NOT EXISTS workout_session_exercise (
	id                     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	session_id             UUID NOT NULL REFERENCES workout_session(id) ON DELETE CASCADE,
	user_id                UUID NOT NULL,
	position               INT NOT NULL,
	entry_id               TEXT NOT NULL,
	exercise_id            TEXT NOT NULL,
	exercise_name          TEXT NOT NULL,
	sets                   INT NOT NULL,
	reps                   INT[] NOT NULL,
	weight                 DOUBLE PRECISION,
	weight_per_set         JSONB NOT NULL DEFAULT '{}',
	notes                  TEXT,
	alternatives           TEXT[] NOT NULL DEFAULT '{}',
	original_exercise_id   TEXT,
	original_exercise_name TEXT,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_session_exercise_session ON workout_session_exercise (session_id);
CREATE INDEX IF NOT EXISTS ix_session_exercise_user_exercise ON workout_session_exercise (user_id, exercise_id, created_at DESC);

CREATE TABLE IF NOT EXISTS gymstats_event (
	id         SERIAL PRIMARY KEY,
	user_id    UUID NOT NULL,
	session_id TEXT,
	type       TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}',
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_gymstats_event_user_ts ON gymstats_event (user_id, timestamp DESC);
`

// Migrate ensures tables exist. Call once at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
