package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	draftSlotKeyPrefix = "liftlog-draft||"
	slotWriteTimeout   = 2 * time.Second
)

// Slot is the per-device storage of the in-progress draft. It survives process
// restarts and is scoped to a single device, never shared across devices.
type Slot interface {
	// Load returns nil and no error when the slot is empty.
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

type RedisSlot struct {
	redisClient *redis.Client
	key         string
	ttl         time.Duration
}

func NewRedisSlot(redisClient *redis.Client, deviceID string, ttl time.Duration) *RedisSlot {
	return &RedisSlot{
		redisClient: redisClient,
		key:         draftSlotKeyPrefix + deviceID,
		ttl:         ttl,
	}
}

func (s *RedisSlot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.redisClient.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft slot: %w", err)
	}
	return data, nil
}

func (s *RedisSlot) Store(ctx context.Context, data []byte) error {
	if err := s.redisClient.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set draft slot: %w", err)
	}
	return nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	if err := s.redisClient.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del draft slot: %w", err)
	}
	return nil
}

type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

func (s *MemorySlot) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.data), nil
}

func (s *MemorySlot) Store(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = bytes.Clone(data)
	return nil
}

func (s *MemorySlot) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// DecodeDraft parses a slot value. Anything unusable (corrupt JSON, missing id,
// owner or exercises list) yields false and is treated as if the slot were empty.
func DecodeDraft(data []byte) (*Session, bool) {
	if len(data) == 0 {
		return nil, false
	}

	var probe struct {
		ID        string          `json:"id"`
		UserID    string          `json:"user_id"`
		Exercises json.RawMessage `json:"exercises"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	if probe.ID == "" || probe.UserID == "" {
		return nil, false
	}
	if trimmed := bytes.TrimSpace(probe.Exercises); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, false
	}
	return &session, true
}

// SlotMirror keeps the slot equal to the draft after every change.
type SlotMirror struct {
	slot Slot
}

func NewSlotMirror(slot Slot) *SlotMirror {
	return &SlotMirror{slot: slot}
}

func (m *SlotMirror) DraftChanged(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), slotWriteTimeout)
	defer cancel()

	if change.Kind == ChangeCleared || change.Draft == nil {
		if err := m.slot.Clear(ctx); err != nil {
			log.Errorf("draft slot: clear: %s", err)
		}
		return
	}

	draftJson, err := json.Marshal(change.Draft)
	if err != nil {
		log.Errorf("draft slot: marshal draft %s: %s", change.Draft.ID, err)
		return
	}
	if err := m.slot.Store(ctx, draftJson); err != nil {
		log.Errorf("draft slot: store draft %s: %s", change.Draft.ID, err)
	}
}
