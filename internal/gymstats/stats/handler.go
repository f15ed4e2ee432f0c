package stats

import (
	"context"
	"net/http"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type exerciseStats interface {
	ExerciseHistory(ctx context.Context, userID, exerciseID string) (*ExerciseHistory, error)
}

type Handler struct {
	stats exerciseStats
}

func NewHandler(stats exerciseStats) *Handler {
	return &Handler{
		stats: stats,
	}
}

func (h *Handler) HandleExerciseHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.stats.exercise_history")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	exerciseID := mux.Vars(r)["id"]
	if exerciseID == "" {
		http.Error(w, "error, exercise id empty", http.StatusBadRequest)
		return
	}

	history, err := h.stats.ExerciseHistory(ctx, userID, exerciseID)
	if err != nil {
		log.Errorf("exercise [%s] history: %s", exerciseID, err)
		http.Error(w, "error, failed to get exercise history", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, history, http.StatusOK)
}
