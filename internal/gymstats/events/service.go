package events

import (
	"context"
	"fmt"

	"github.com/2beens/liftlog/internal/telemetry/tracing"
)

//go:generate mockgen -source=$GOFILE -destination=repo_mocks_test.go -package=events

type eventsRepo interface {
	Add(ctx context.Context, event Event) (*Event, error)
	List(ctx context.Context, params ListParams) ([]*Event, error)
	Count(ctx context.Context, params EventParams) (int, error)
}

type Service struct {
	repo eventsRepo
}

func NewService(repo eventsRepo) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) AddSessionStarted(ctx context.Context, sl SessionLifecycle) (int, error) {
	return s.add(ctx, "service.gymstats.events.add.sessionstarted", NewSessionStartedEvent(sl))
}

func (s *Service) AddSessionResumed(ctx context.Context, sl SessionLifecycle) (int, error) {
	return s.add(ctx, "service.gymstats.events.add.sessionresumed", NewSessionResumedEvent(sl))
}

func (s *Service) AddSessionFinished(ctx context.Context, sl SessionLifecycle) (int, error) {
	return s.add(ctx, "service.gymstats.events.add.sessionfinished", NewSessionFinishedEvent(sl))
}

func (s *Service) AddSessionAbandoned(ctx context.Context, sl SessionLifecycle) (int, error) {
	return s.add(ctx, "service.gymstats.events.add.sessionabandoned", NewSessionAbandonedEvent(sl))
}

func (s *Service) add(ctx context.Context, spanName string, event Event) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, spanName)
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	added, err := s.repo.Add(ctx, event)
	if err != nil {
		return 0, fmt.Errorf("add %s event: %w", event.Type, err)
	}
	return added.ID, nil
}

func (s *Service) List(ctx context.Context, params ListParams) (_ []*Event, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.gymstats.events.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	events, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *Service) Count(ctx context.Context, params EventParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "service.gymstats.events.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	count, err := s.repo.Count(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
