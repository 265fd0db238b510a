package main

import (
	"context"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-cavy/service"
)

// serviceLifecycle runs the healthz and metrics servers next to an app.
type serviceLifecycle struct {
	cliapp.Lifecycle
	svc *service.Service
}

func withService(app cliapp.Lifecycle, svc *service.Service) *serviceLifecycle {
	return &serviceLifecycle{Lifecycle: app, svc: svc}
}

func (s *serviceLifecycle) Start(ctx context.Context) error {
	s.svc.Start()
	return s.Lifecycle.Start(ctx)
}

func (s *serviceLifecycle) Stop(ctx context.Context) error {
	err := s.Lifecycle.Stop(ctx)
	s.svc.Shutdown()
	return err
}
