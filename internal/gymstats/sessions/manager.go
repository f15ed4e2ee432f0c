package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/2beens/liftlog/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

var ErrNoDevice = errors.New("missing device id")

type ManagerParams struct {
	Backend              Backend
	Catalog              catalog
	Programs             programsRepo
	Events               eventsRecorder
	SlotFactory          func(deviceID string) Slot
	AutosaveDelay        time.Duration
	PreviousLiftRowLimit int
	Metrics              *metrics.Manager
}

type trackerKey struct {
	userID   string
	deviceID string
}

// Manager owns the trackers of all users and devices currently working out.
type Manager struct {
	params ManagerParams

	mu       sync.Mutex
	trackers map[trackerKey]*Tracker
	lastUsed map[trackerKey]time.Time
	closed   bool
	clock    func() time.Time

	stopEviction chan struct{}
	evictionWg   sync.WaitGroup
}

func NewManager(params ManagerParams) *Manager {
	return &Manager{
		params:       params,
		trackers:     make(map[trackerKey]*Tracker),
		lastUsed:     make(map[trackerKey]time.Time),
		clock:        time.Now,
		stopEviction: make(chan struct{}),
	}
}

// Tracker returns the tracker of the user on the device, creating it on first use.
// A new tracker recovers the draft the user left on that device.
func (m *Manager) Tracker(ctx context.Context, userID, deviceID string) (*Tracker, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	if deviceID == "" {
		return nil, ErrNoDevice
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("session manager is shut down")
	}

	key := trackerKey{userID: userID, deviceID: deviceID}
	m.lastUsed[key] = m.clock()
	if t, ok := m.trackers[key]; ok {
		return t, nil
	}

	t := NewTracker(TrackerParams{
		UserID:               userID,
		DeviceID:             deviceID,
		Backend:              m.params.Backend,
		Catalog:              m.params.Catalog,
		Programs:             m.params.Programs,
		Events:               m.params.Events,
		Slot:                 m.params.SlotFactory(deviceID),
		AutosaveDelay:        m.params.AutosaveDelay,
		PreviousLiftRowLimit: m.params.PreviousLiftRowLimit,
		Metrics:              m.params.Metrics,
	})
	if t.Recover(ctx) {
		log.Debugf("session manager: recovered draft of user %s on device %s", userID, deviceID)
	}

	m.trackers[key] = t
	m.params.Metrics.GaugeActiveDrafts.Set(float64(len(m.trackers)))
	return t, nil
}

// Release drops the tracker once its session has ended.
func (m *Manager) Release(userID, deviceID string) {
	m.mu.Lock()
	key := trackerKey{userID: userID, deviceID: deviceID}
	t, ok := m.trackers[key]
	if ok {
		delete(m.trackers, key)
		delete(m.lastUsed, key)
	}
	m.params.Metrics.GaugeActiveDrafts.Set(float64(len(m.trackers)))
	m.mu.Unlock()

	if ok {
		t.Close()
	}
}

// EvictIdle saves and drops the trackers nobody used for maxIdle. The draft
// stays in the device slot, so the next request on that device recovers it.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	cutoff := m.clock().Add(-maxIdle)
	var idle []*Tracker
	for key, t := range m.trackers {
		if m.lastUsed[key].After(cutoff) {
			continue
		}
		idle = append(idle, t)
		delete(m.trackers, key)
		delete(m.lastUsed, key)
	}
	m.params.Metrics.GaugeActiveDrafts.Set(float64(len(m.trackers)))
	m.mu.Unlock()

	for _, t := range idle {
		t.Flush()
		t.Close()
	}
	if len(idle) > 0 {
		log.Debugf("session manager: evicted %d idle trackers", len(idle))
	}
	return len(idle)
}

// StartIdleEviction runs EvictIdle every interval until Shutdown.
func (m *Manager) StartIdleEviction(interval, maxIdle time.Duration) {
	m.evictionWg.Add(1)
	go func() {
		defer m.evictionWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopEviction:
				return
			case <-ticker.C:
				m.EvictIdle(maxIdle)
			}
		}
	}()
}

// Shutdown saves every pending draft change and stops all trackers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if !m.closed {
		close(m.stopEviction)
	}
	m.closed = true
	trackers := m.trackers
	m.trackers = make(map[trackerKey]*Tracker)
	m.lastUsed = make(map[trackerKey]time.Time)
	m.mu.Unlock()
	m.evictionWg.Wait()

	flushed := 0
	for _, t := range trackers {
		if t.Flush() {
			flushed++
		}
		t.Close()
	}
	m.params.Metrics.GaugeActiveDrafts.Set(0)
	log.Debugf("session manager: shut down %d trackers, flushed %d drafts", len(trackers), flushed)
}
