package sessions

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/liftlog/internal/auth"
	"github.com/2beens/liftlog/internal/gymstats/programs"
	"github.com/2beens/liftlog/internal/telemetry/tracing"
	"github.com/2beens/liftlog/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	DeviceIDHeader      = "X-Device-ID"
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type CreateFreeformRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type CreateFromProgramDayRequest struct {
	ProgramID  string `json:"program_id"`
	WeekNumber int    `json:"week_number"`
	DayName    string `json:"day_name"`
	Date       string `json:"date"`
}

type AddExerciseRequest struct {
	ExerciseID   string   `json:"exercise_id"`
	ExerciseName string   `json:"exercise_name"`
	Sets         int      `json:"sets"`
	Reps         []int    `json:"reps"`
	Weight       *float64 `json:"weight"`
	Notes        string   `json:"notes"`
}

type AddExerciseResponse struct {
	EntryID string  `json:"entry_id"`
	Draft   Session `json:"draft"`
}

type SwapRequest struct {
	Target string `json:"target"`
}

type UpdateDateRequest struct {
	Date string `json:"date"`
}

type InProgressResponse struct {
	Session *Session `json:"session"`
}

type ResyncResponse struct {
	Replaced bool     `json:"replaced"`
	Draft    *Session `json:"draft"`
}

type PreviousLiftsResponse struct {
	PreviousLifts map[string]PreviousLiftLog `json:"previous_lifts"`
}

type ListResponse struct {
	Sessions []Session `json:"sessions"`
}

type Handler struct {
	manager *Manager
	backend Backend
}

func NewHandler(manager *Manager, backend Backend) *Handler {
	return &Handler{
		manager: manager,
		backend: backend,
	}
}

// SetupRoutes registers the workout routes on a /workout subrouter.
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/start/freeform", h.HandleStartFreeform).Methods("GET", "OPTIONS").Name("start-freeform")
	router.HandleFunc("/in-progress", h.HandleInProgress).Methods("GET", "OPTIONS").Name("in-progress")

	router.HandleFunc("/draft", h.HandleGetDraft).Methods("GET", "OPTIONS").Name("get-draft")
	router.HandleFunc("/draft", h.HandleAbandon).Methods("DELETE", "OPTIONS").Name("abandon-draft")
	router.HandleFunc("/draft/freeform", h.HandleCreateFreeform).Methods("POST", "OPTIONS").Name("new-freeform-draft")
	router.HandleFunc("/draft/program", h.HandleCreateFromProgramDay).Methods("POST", "OPTIONS").Name("new-program-draft")
	router.HandleFunc("/draft/resume/{id}", h.HandleResume).Methods("POST", "OPTIONS").Name("resume-session")
	router.HandleFunc("/draft/finalize", h.HandleFinalize).Methods("POST", "OPTIONS").Name("finalize-draft")
	router.HandleFunc("/draft/resync", h.HandleResync).Methods("POST", "OPTIONS").Name("resync-draft")
	router.HandleFunc("/draft/date", h.HandleUpdateDate).Methods("PUT", "OPTIONS").Name("update-draft-date")
	router.HandleFunc("/draft/previous", h.HandlePreviousLifts).Methods("GET", "OPTIONS").Name("previous-lifts")

	router.HandleFunc("/draft/exercises", h.HandleAddExercise).Methods("POST", "OPTIONS").Name("add-entry")
	router.HandleFunc("/draft/exercises/{entryId}", h.HandleUpdateExercise).Methods("PATCH", "OPTIONS").Name("update-entry")
	router.HandleFunc("/draft/exercises/{entryId}", h.HandleRemoveExercise).Methods("DELETE", "OPTIONS").Name("remove-entry")
	router.HandleFunc("/draft/exercises/{entryId}/swap", h.HandleSwap).Methods("POST", "OPTIONS").Name("swap-entry")

	router.HandleFunc("/sessions", h.HandleList).Methods("GET", "OPTIONS").Name("list-sessions")
	router.HandleFunc("/sessions/{id}", h.HandleGet).Methods("GET", "OPTIONS").Name("get-session")
}

func (h *Handler) tracker(w http.ResponseWriter, r *http.Request) (*Tracker, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, false
	}

	t, err := h.manager.Tracker(r.Context(), userID, r.Header.Get(DeviceIDHeader))
	if err != nil {
		if errors.Is(err, ErrNoDevice) {
			http.Error(w, "error, missing device id", http.StatusBadRequest)
			return nil, false
		}
		log.Errorf("get session tracker: %s", err)
		http.Error(w, "error, sessions unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	return t, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Tracef("unmarshal json params: %s", err)
		http.Error(w, "error, invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// parseDate accepts YYYY-MM-DD; empty means today.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return DateOnly(time.Now()), nil
	}
	return time.Parse(time.DateOnly, value)
}

func writeDraft(w http.ResponseWriter, t *Tracker, statusCode int) {
	draft, ok := t.Store().Draft()
	if !ok {
		http.Error(w, "error, no workout in progress", http.StatusNotFound)
		return
	}
	pkg.WriteJSON(w, draft, statusCode)
}

func (h *Handler) HandleStartFreeform(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.start_freeform")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	today, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	result, err := t.StartFreeform(ctx, today)
	if err != nil {
		log.Errorf("start freeform: %s", err)
		http.Error(w, "error, failed to check existing sessions", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, result, http.StatusOK)
}

func (h *Handler) HandleInProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.in_progress")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	session, err := t.InProgress(ctx)
	if err != nil {
		log.Errorf("in progress session: %s", err)
		http.Error(w, "error, failed to check sessions in progress", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, InProgressResponse{Session: session}, http.StatusOK)
}

func (h *Handler) HandleCreateFreeform(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.create_freeform")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var req CreateFreeformRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	draft, err := t.CreateFreeform(ctx, req.Name, date)
	if err != nil {
		log.Errorf("create freeform session: %s", err)
		http.Error(w, "error, failed to create session", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, draft, http.StatusCreated)
}

func (h *Handler) HandleCreateFromProgramDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.create_program")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var req CreateFromProgramDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProgramID == "" || req.DayName == "" || req.WeekNumber < 1 {
		http.Error(w, "error, program, week and day are required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	draft, err := t.CreateFromProgramDay(ctx, req.ProgramID, req.WeekNumber, req.DayName, date)
	if err != nil {
		if errors.Is(err, programs.ErrProgramNotFound) || errors.Is(err, ErrProgramDayNotFound) {
			http.Error(w, "error, program day not found", http.StatusNotFound)
			return
		}
		log.Errorf("create program session: %s", err)
		http.Error(w, "error, failed to create session", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, draft, http.StatusCreated)
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.resume")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	draft, err := t.Resume(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrForeignSession) {
			http.Error(w, "error, session not found", http.StatusNotFound)
			return
		}
		log.Errorf("resume session: %s", err)
		http.Error(w, "error, failed to resume session", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, draft, http.StatusOK)
}

func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get_draft")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}
	writeDraft(w, t, http.StatusOK)
}

func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.abandon")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	if err := t.Abandon(ctx); err != nil {
		// the draft is gone either way, only backend rows may be left behind
		log.Errorf("abandon session: %s", err)
	}
	h.manager.Release(t.userID, t.deviceID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.finalize")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	finalized, err := t.Finalize(ctx)
	if err != nil {
		if errors.Is(err, ErrNoDraft) {
			pkg.WriteJSONError(w, "no workout in progress", http.StatusNotFound)
			return
		}
		log.Errorf("finalize session: %s", err)
		pkg.WriteJSONError(w, "failed to save the workout, please try again", http.StatusInternalServerError)
		return
	}
	h.manager.Release(t.userID, t.deviceID)

	pkg.WriteJSON(w, finalized, http.StatusOK)
}

func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.resync")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	replaced, err := t.Resync(ctx)
	if err != nil {
		log.Errorf("resync draft: %s", err)
		http.Error(w, "error, failed to resync", http.StatusInternalServerError)
		return
	}

	resp := ResyncResponse{Replaced: replaced}
	if draft, ok := t.Store().Draft(); ok {
		resp.Draft = &draft
	}
	pkg.WriteJSON(w, resp, http.StatusOK)
}

func (h *Handler) HandleUpdateDate(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.update_date")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var req UpdateDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		http.Error(w, "error, invalid date", http.StatusBadRequest)
		return
	}

	if err := t.Store().UpdateSessionDate(date); err != nil {
		http.Error(w, "error, no workout in progress", http.StatusNotFound)
		return
	}
	writeDraft(w, t, http.StatusOK)
}

func (h *Handler) HandlePreviousLifts(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.previous_lifts")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	previous, err := t.PreviousLifts(ctx)
	if err != nil {
		if errors.Is(err, ErrNoDraft) {
			http.Error(w, "error, no workout in progress", http.StatusNotFound)
			return
		}
		log.Errorf("previous lifts: %s", err)
		http.Error(w, "error, failed to get previous lifts", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSON(w, PreviousLiftsResponse{PreviousLifts: previous}, http.StatusOK)
}

func (h *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.add_exercise")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var req AddExerciseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entryID, err := t.AddExercise(ctx, NewEntry{
		ExerciseID:   req.ExerciseID,
		ExerciseName: req.ExerciseName,
		Sets:         req.Sets,
		Reps:         req.Reps,
		Weight:       req.Weight,
		Notes:        req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoDraft):
			http.Error(w, "error, no workout in progress", http.StatusNotFound)
		case errors.Is(err, ErrUnknownExercise):
			http.Error(w, "error, unknown exercise", http.StatusBadRequest)
		default:
			log.Errorf("add exercise: %s", err)
			http.Error(w, "error, failed to add exercise", http.StatusInternalServerError)
		}
		return
	}

	draft, ok := t.Store().Draft()
	if !ok {
		http.Error(w, "error, no workout in progress", http.StatusNotFound)
		return
	}
	pkg.WriteJSON(w, AddExerciseResponse{EntryID: entryID, Draft: draft}, http.StatusCreated)
}

func (h *Handler) HandleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.update_exercise")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var update EntryUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	if !t.Store().UpdateExercise(mux.Vars(r)["entryId"], update) {
		http.Error(w, "error, exercise entry not found", http.StatusNotFound)
		return
	}
	writeDraft(w, t, http.StatusOK)
}

func (h *Handler) HandleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.remove_exercise")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	if !t.Store().RemoveExercise(mux.Vars(r)["entryId"]) {
		http.Error(w, "error, exercise entry not found", http.StatusNotFound)
		return
	}
	writeDraft(w, t, http.StatusOK)
}

// HandleSwap always answers with the current draft; an impossible swap leaves it unchanged.
func (h *Handler) HandleSwap(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.swap")
	defer span.End()

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var req SwapRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	swapped := t.Store().SwapAlternative(ctx, mux.Vars(r)["entryId"], req.Target)
	log.Tracef("swap entry %s to [%s]: %t", mux.Vars(r)["entryId"], req.Target, swapped)
	writeDraft(w, t, http.StatusOK)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			http.Error(w, "error, invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(limit, maxHistoryLimit)
	}

	sessions, err := h.backend.ListCompleted(ctx, userID, limit)
	if err != nil {
		log.Errorf("list sessions: %s", err)
		http.Error(w, "error, failed to get sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}

	pkg.WriteJSON(w, ListResponse{Sessions: sessions}, http.StatusOK)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	session, err := h.backend.GetSession(ctx, userID, mux.Vars(r)["id"])
	if err != nil {
		log.Errorf("get session: %s", err)
		http.Error(w, "error, failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "error, session not found", http.StatusNotFound)
		return
	}

	pkg.WriteJSON(w, session, http.StatusOK)
}

// Shutdown flushes pending auto-saves of all trackers.
func (h *Handler) Shutdown() {
	h.manager.Shutdown()
}
