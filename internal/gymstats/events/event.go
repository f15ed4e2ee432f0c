package events

import (
	"strconv"
	"time"
)

// SessionLifecycle describes a workout session at the moment a lifecycle event happens.
type SessionLifecycle struct {
	UserID      string
	SessionID   string
	SessionName string
	SessionType string
	Exercises   int
	Timestamp   time.Time
}

// Event (DB level type) records what happened to a workout session:
//   - session started (freeform, from a program day, or resumed)
//   - session finished (with number of exercises logged)
//   - session abandoned
type Event struct {
	ID        int               `json:"id"`
	UserID    string            `json:"userId"`
	SessionID string            `json:"sessionId,omitempty"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

func newSessionEvent(eventType EventType, sl SessionLifecycle) Event {
	data := map[string]string{
		"exercises": strconv.Itoa(sl.Exercises),
	}
	if sl.SessionName != "" {
		data["name"] = sl.SessionName
	}
	if sl.SessionType != "" {
		data["session_type"] = sl.SessionType
	}
	return Event{
		UserID:    sl.UserID,
		SessionID: sl.SessionID,
		Type:      eventType,
		Timestamp: sl.Timestamp,
		Data:      data,
	}
}

func NewSessionStartedEvent(sl SessionLifecycle) Event {
	return newSessionEvent(EventTypeSessionStarted, sl)
}

func NewSessionResumedEvent(sl SessionLifecycle) Event {
	return newSessionEvent(EventTypeSessionResumed, sl)
}

func NewSessionFinishedEvent(sl SessionLifecycle) Event {
	return newSessionEvent(EventTypeSessionFinished, sl)
}

func NewSessionAbandonedEvent(sl SessionLifecycle) Event {
	return newSessionEvent(EventTypeSessionAbandoned, sl)
}

// EventType can be one of:
//   - session_started
//   - session_resumed
//   - session_finished
//   - session_abandoned
type EventType string

const (
	EventTypeSessionStarted   EventType = "session_started"
	EventTypeSessionResumed   EventType = "session_resumed"
	EventTypeSessionFinished  EventType = "session_finished"
	EventTypeSessionAbandoned EventType = "session_abandoned"
)

func (et EventType) String() string {
	return string(et)
}

func (et EventType) IsValid() bool {
	switch et {
	case EventTypeSessionStarted,
		EventTypeSessionResumed,
		EventTypeSessionFinished,
		EventTypeSessionAbandoned:
		return true
	default:
		return false
	}
}
