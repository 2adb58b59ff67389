// Package daemon wires the database, the directory and the role mapping
// services together and runs them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db"
	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web"
	"github.com/GoPowerDNS-Admin/rolesync/internal/web/handler"
)

// ErrNilConfig is returned by New when no configuration is given.
var ErrNilConfig = errors.New("config is nil")

// Daemon represents the main application daemon.
type Daemon struct {
	cfg *config.Config
	db  *gorm.DB

	Roles      *store.Store
	Users      *identity.DBResolver
	Engine     *rolesync.Engine
	History    *rolesync.History
	Registry   *mapper.Registry
	Dispatcher *federation.Dispatcher

	webService *web.Service
}

// Options replace the collaborators New would create from the configuration.
type Options struct {
	DB         *gorm.DB
	Dialer     directory.Dialer
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// New creates a new Daemon instance with the provided configuration. The
// mappers of the configuration are applied to the database.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if opts.DB == nil {
		conn, err := db.Open(&cfg.DB, cfg.Log.SQLLogLevel)
		if err != nil {
			return nil, err
		}

		opts.DB = conn
	}

	if err := db.Migrate(opts.DB); err != nil {
		return nil, err
	}

	if opts.Dialer == nil {
		opts.Dialer = directory.NewLDAPDialer(cfg.Directory)
	}

	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
		opts.Gatherer = prometheus.DefaultGatherer
	}

	adapter := directory.NewAdapter(opts.Dialer,
		directory.WithPageSize(cfg.Directory.PageSize),
		directory.WithTimeLimit(cfg.Directory.Timeout),
	)

	d := &Daemon{
		cfg:     cfg,
		db:      opts.DB,
		Roles:   store.New(opts.DB),
		Users:   identity.NewDBResolver(opts.DB),
		History: rolesync.NewHistory(opts.DB),
	}

	d.Engine = rolesync.New(d.Roles, adapter, d.Users,
		rolesync.WithHistory(d.History),
		rolesync.WithRegisterer(opts.Registerer),
	)
	d.Registry = mapper.NewRegistry(opts.DB, d.Engine)
	d.Dispatcher = federation.New(d.Roles, adapter, d.Engine)

	if _, err := d.ApplyMappers(ctx); err != nil {
		return nil, err
	}

	webService, err := web.New(cfg, &handler.Deps{
		Users:      d.Users,
		Mappers:    d.Registry,
		Dispatcher: d.Dispatcher,
		Runs:       d.History,
		Pusher:     d.Engine,
	}, opts.Gatherer)
	if err != nil {
		return nil, err
	}

	d.webService = webService

	return d, nil
}

// Snapshot returns the current mappers of realmID.
func (d *Daemon) Snapshot(ctx context.Context, realmID string) (*mapper.Snapshot, error) {
	return d.Registry.Snapshot(ctx, realmID)
}

// Start runs the web service and, when enabled, the sync scheduler until ctx
// is done, then shuts both down.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	if d.cfg.Sync.Enabled {
		scheduler := rolesync.NewScheduler(d.Engine, d.Registry, d.cfg.Sync.Tick)

		wg.Add(1)

		go func() {
			defer wg.Done()

			scheduler.Run(ctx)
		}()
	}

	listenErr := make(chan error, 1)

	go func() {
		addr := fmt.Sprintf(":%d", d.cfg.Webserver.Port)
		log.Info().Str("addr", addr).Msg("starting http server")

		listenErr <- d.webService.Start(addr)
	}()

	var err error

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")

		err = d.webService.Shutdown()
		<-listenErr
	case err = <-listenErr:
		if err != nil {
			log.Error().Err(err).Msg("fiber listen error")
		}
	}

	cancel()
	wg.Wait()

	return err
}

// Close releases the database connection.
func (d *Daemon) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sqlDB.Close() //nolint:wrapcheck
}
