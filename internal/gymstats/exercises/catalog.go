package exercises

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	nameCacheExpireSeconds = 10 * 60
	// DefaultNameCacheSize is the freecache arena size in bytes.
	DefaultNameCacheSize = 4 * 1024 * 1024
)

//go:generate mockgen -source=$GOFILE -destination=catalog_mocks_test.go -package=exercises

type catalogRepo interface {
	Add(ctx context.Context, exercise Exercise) (*Exercise, error)
	Get(ctx context.Context, userID, id string) (*Exercise, error)
	FindByName(ctx context.Context, userID, name string) (*Exercise, error)
	List(ctx context.Context, userID string) ([]Exercise, error)
}

// Catalog serves exercise lookups, caching name lookups used when swapping
// to an alternative mid-workout.
type Catalog struct {
	repo  catalogRepo
	cache *freecache.Cache
}

func NewCatalog(repo catalogRepo, cacheSize int) *Catalog {
	if cacheSize <= 0 {
		cacheSize = DefaultNameCacheSize
	}
	return &Catalog{
		repo:  repo,
		cache: freecache.NewCache(cacheSize),
	}
}

func nameCacheKey(userID, name string) []byte {
	return []byte("name::" + userID + "::" + strings.ToLower(strings.TrimSpace(name)))
}

// FindByName returns nil and no error when the user has no exercise with that name.
func (c *Catalog) FindByName(ctx context.Context, userID, name string) (*Exercise, error) {
	key := nameCacheKey(userID, name)
	if cached, err := c.cache.Get(key); err == nil {
		var e Exercise
		if err := json.Unmarshal(cached, &e); err == nil {
			return &e, nil
		} else {
			log.Errorf("failed to unmarshal cached exercise [%s]: %s", name, err)
		}
	}

	e, err := c.repo.FindByName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			return nil, nil
		}
		return nil, err
	}

	c.store(key, e)
	return e, nil
}

func (c *Catalog) Add(ctx context.Context, exercise Exercise) (*Exercise, error) {
	added, err := c.repo.Add(ctx, exercise)
	if err != nil {
		return nil, err
	}
	c.store(nameCacheKey(added.UserID, added.Name), added)
	return added, nil
}

func (c *Catalog) Get(ctx context.Context, userID, id string) (*Exercise, error) {
	return c.repo.Get(ctx, userID, id)
}

func (c *Catalog) List(ctx context.Context, userID string) ([]Exercise, error) {
	return c.repo.List(ctx, userID)
}

func (c *Catalog) store(key []byte, e *Exercise) {
	eJson, err := json.Marshal(e)
	if err != nil {
		log.Errorf("failed to marshal exercise for cache: %s", err)
		return
	}
	if err := c.cache.Set(key, eJson, nameCacheExpireSeconds); err != nil {
		log.Errorf("failed to cache exercise [%s]: %s", e.Name, err)
	}
}
