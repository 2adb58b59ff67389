package rolesync

import (
	"context"
	"errors"
	"time"

	"github.com/GoPowerDNS-Admin/rolesync/internal/logger"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
)

// SnapshotSource provides the mappers to schedule.
type SnapshotSource interface {
	Realms(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, realmID string) (*mapper.Snapshot, error)
}

// Scheduler runs every mapper with a sync interval periodically.
type Scheduler struct {
	engine *Engine
	source SnapshotSource
	tick   time.Duration

	last map[key]time.Time
}

// NewScheduler creates a scheduler checking for due mappers every tick.
func NewScheduler(engine *Engine, source SnapshotSource, tick time.Duration) *Scheduler {
	return &Scheduler{
		engine: engine,
		source: source,
		tick:   tick,
		last:   make(map[key]time.Time),
	}
}

// Run checks for due mappers until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log := logger.Component(component)
	log.Info().Dur("tick", s.tick).Msg("sync scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sync scheduler stopped")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every mapper whose interval has passed since its last scheduled
// run and returns the number of runs started. Mappers without an interval are
// only synchronized on demand.
func (s *Scheduler) RunDue(ctx context.Context) int {
	log := logger.Component(component)

	realms, err := s.source.Realms(ctx)
	if err != nil {
		log.Error().Err(err).Msg("can't list realms for scheduled sync")
		return 0
	}

	started := 0

	for _, realmID := range realms {
		snap, errSnap := s.source.Snapshot(ctx, realmID)
		if errSnap != nil {
			log.Error().Err(errSnap).Str("realm", realmID).Msg("can't load mappers for scheduled sync")
			continue
		}

		for _, cfg := range snap.Mappers() {
			if !s.due(cfg) {
				continue
			}

			s.last[key{cfg.RealmID, cfg.Name}] = s.engine.now()
			started++

			_, errRun := s.engine.Run(ctx, cfg)

			switch {
			case errRun == nil, IsPartial(errRun):
			case errors.Is(errRun, ErrSyncInProgress):
				mapperLogger(cfg).Debug().Msg("scheduled sync skipped, already running")
			default:
				mapperLogger(cfg).Warn().Err(errRun).Msg("scheduled sync failed")
			}
		}
	}

	return started
}

func (s *Scheduler) due(cfg mapper.Config) bool {
	if cfg.SyncInterval <= 0 {
		return false
	}

	last, ok := s.last[key{cfg.RealmID, cfg.Name}]

	return !ok || s.engine.now().Sub(last) >= cfg.SyncInterval
}
