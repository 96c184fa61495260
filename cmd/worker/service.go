package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const defaultPollInterval = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type inboxProcessor interface {
	Run(ctx context.Context, interval time.Duration) error
}

type ServiceParams struct {
	Logger       *logger.Logger
	DB           pinger
	Processor    inboxProcessor
	PollInterval time.Duration
}

// Service drains the Stripe webhook inbox until its context ends.
type Service struct {
	logg         *logger.Logger
	db           pinger
	processor    inboxProcessor
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Processor == nil {
		return nil, errors.New("inbox processor is required")
	}
	interval := params.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		processor:    params.Processor,
		pollInterval: interval,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ctx = s.logg.WithField(ctx, "pollInterval", s.pollInterval.String())
	s.logg.Info(ctx, "webhook inbox processor started")

	err := s.processor.Run(ctx, s.pollInterval)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "webhook inbox processor stopped unexpectedly", err)
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return err
}
