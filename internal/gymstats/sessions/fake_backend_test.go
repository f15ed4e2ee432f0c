package sessions

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// fakeBackend is an in-memory Backend with the same row semantics as the Postgres repo.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]Session
	nextID   int

	insertErr error
	updateErr error
	deleteErr error
	getErr    error

	inserts int
	updates int
	deletes int

	// historyHook runs before History reads, without the lock held
	historyHook func(params HistoryParams)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]Session),
	}
}

// add stores a session as is and returns its new id.
func (b *fakeBackend) add(session Session) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	session.ID = fmt.Sprintf("s-%d", b.nextID)
	b.sessions[session.ID] = session.Clone()
	return session.ID
}

func (b *fakeBackend) get(id string) (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	return s.Clone(), ok
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *fakeBackend) InsertSession(_ context.Context, session Session) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return "", b.insertErr
	}
	b.inserts++
	b.nextID++
	session.ID = fmt.Sprintf("s-%d", b.nextID)
	b.sessions[session.ID] = session.Clone()
	return session.ID, nil
}

func (b *fakeBackend) UpdateSession(_ context.Context, session Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return b.updateErr
	}
	stored, ok := b.sessions[session.ID]
	if !ok || stored.UserID != session.UserID {
		return ErrSessionNotFound
	}
	b.updates++
	updated := session.Clone()
	updated.Type = stored.Type
	updated.CreatedAt = stored.CreatedAt
	b.sessions[session.ID] = updated
	return nil
}

func (b *fakeBackend) DeleteSession(_ context.Context, userID, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deletes++
	if s, ok := b.sessions[sessionID]; ok && s.UserID == userID {
		delete(b.sessions, sessionID)
	}
	return nil
}

func (b *fakeBackend) GetSession(_ context.Context, userID, sessionID string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	s, ok := b.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	c := s.Clone()
	return &c, nil
}

func (b *fakeBackend) newest(match func(Session) bool) *Session {
	var found *Session
	for _, s := range b.sessions {
		if !match(s) {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			c := s.Clone()
			found = &c
		}
	}
	return found
}

func (b *fakeBackend) LatestFreeformOn(_ context.Context, userID string, date time.Time) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	day := DateOnly(date)
	return b.newest(func(s Session) bool {
		return s.UserID == userID && s.Type == SessionTypeFreeform && DateOnly(s.SessionDate).Equal(day)
	}), nil
}

func (b *fakeBackend) LatestInProgress(_ context.Context, userID string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newest(func(s Session) bool {
		return s.UserID == userID && !s.IsCompleted()
	}), nil
}

func sortNewestFirst(sessions []Session) {
	slices.SortFunc(sessions, func(a, b Session) int {
		if c := b.SessionDate.Compare(a.SessionDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

func (b *fakeBackend) ListCompleted(_ context.Context, userID string, limit int) ([]Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var list []Session
	for _, s := range b.sessions {
		if s.UserID == userID && s.IsCompleted() {
			list = append(list, s.Clone())
		}
	}
	sortNewestFirst(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (b *fakeBackend) History(_ context.Context, params HistoryParams) ([]PreviousLiftLog, error) {
	if b.historyHook != nil {
		b.historyHook(params)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var completed []Session
	for _, s := range b.sessions {
		if s.UserID == params.UserID && s.IsCompleted() && s.ID != params.ExcludeSessionID {
			completed = append(completed, s)
		}
	}
	sortNewestFirst(completed)

	var logs []PreviousLiftLog
	for _, s := range completed {
		for _, e := range s.Exercises {
			if !slices.Contains(params.ExerciseIDs, e.ExerciseID) {
				continue
			}
			logs = append(logs, PreviousLiftLog{
				ExerciseID:  e.ExerciseID,
				Reps:        slices.Clone(e.Reps),
				Weights:     e.ResolvedWeights(),
				SessionID:   s.ID,
				SessionDate: s.SessionDate,
				SessionName: s.Name,
				ProgramID:   s.ProgramID,
				DayName:     s.DayName,
				CreatedAt:   s.CreatedAt,
			})
		}
	}
	if params.Limit > 0 && len(logs) > params.Limit {
		logs = logs[:params.Limit]
	}
	return logs, nil
}
