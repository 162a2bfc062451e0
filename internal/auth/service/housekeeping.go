package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/lanternhq/lantern/internal/auth/store"
)

// HousekeepingService periodically deletes expired tickets and refresh
// tokens so the tables don't grow without bound. Consumed tickets stay until
// their expiry passes; until then they are the replay tombstones.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. An interval of zero or less
// defaults to one hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep deletes each class of expired record independently so one failure
// doesn't block the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()

	if err := s.Store.Tickets().DeleteExpiredTickets(ctx); err != nil {
		s.Logger.Error("housekeeping: delete expired tickets", "error", err)
	}
	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx); err != nil {
		s.Logger.Error("housekeeping: delete expired refresh tokens", "error", err)
	}
}
