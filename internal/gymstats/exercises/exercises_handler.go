package exercises

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=exercises_mocks_test.go -package=exercises_test

type exercisesCatalog interface {
	Add(ctx context.Context, exercise Exercise) (*Exercise, error)
	List(ctx context.Context, userID string) ([]Exercise, error)
}

type ListResponse struct {
	Exercises []Exercise `json:"exercises"`
	Total     int        `json:"total"`
}

type Handler struct {
	catalog exercisesCatalog
}

func NewHandler(catalog exercisesCatalog) *Handler {
	return &Handler{
		catalog: catalog,
	}
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.add")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var exercise Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		log.Tracef("new exercise, unmarshal json params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	exercise.Name = strings.TrimSpace(exercise.Name)
	if exercise.Name == "" {
		http.Error(w, "error, exercise name empty", http.StatusBadRequest)
		return
	}
	exercise.UserID = userID

	added, err := handler.catalog.Add(ctx, exercise)
	if err != nil {
		if errors.Is(err, ErrExerciseExists) {
			http.Error(w, "error, exercise already exists", http.StatusConflict)
			return
		}
		if errors.Is(err, ErrUnknownOwner) {
			http.Error(w, "no can do", http.StatusUnauthorized)
			return
		}
		log.Errorf("failed to add new exercise [%s]: %s", exercise.Name, err)
		http.Error(w, "error, failed to add new exercise", http.StatusInternalServerError)
		return
	}

	log.Debugf("new exercise added: %s [%s]", added.Name, added.ID)
	pkg.WriteJSON(w, added, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.list")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	list, err := handler.catalog.List(ctx, userID)
	if err != nil {
		log.Errorf("failed to list exercises: %s", err)
		http.Error(w, "error, failed to get exercises", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Exercise{}
	}

	pkg.WriteJSON(w, ListResponse{
		Exercises: list,
		Total:     len(list),
	}, http.StatusOK)
}
