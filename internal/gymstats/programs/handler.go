package programs

import (
	"context"
	"errors"
	"net/http"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=programs_mocks_test.go -package=programs_test

type programsRepo interface {
	List(ctx context.Context, userID string) ([]Program, error)
	Get(ctx context.Context, userID, id string) (*Program, error)
}

type ListResponse struct {
	Programs []Program `json:"programs"`
}

// ProgramResponse is a program with its derived week count.
type ProgramResponse struct {
	Program
	TotalWeeks int `json:"totalWeeks"`
}

type Handler struct {
	repo programsRepo
}

func NewHandler(repo programsRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.programs.list")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	list, err := handler.repo.List(ctx, userID)
	if err != nil {
		log.Errorf("failed to list programs: %s", err)
		http.Error(w, "error, failed to get programs", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Program{}
	}

	pkg.WriteJSON(w, ListResponse{Programs: list}, http.StatusOK)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.programs.get")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}

	p, err := handler.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrProgramNotFound) {
			http.Error(w, "error, program not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get program %s: %s", id, err)
		http.Error(w, "error, failed to get program", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, ProgramResponse{
		Program:    *p,
		TotalWeeks: p.TotalWeeks(),
	}, http.StatusOK)
}
