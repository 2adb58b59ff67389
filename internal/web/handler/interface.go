package handler

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/GoPowerDNS-Admin/rolesync/internal/config"
	"github.com/GoPowerDNS-Admin/rolesync/internal/db/models"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, deps *Deps) error
}

// Snapshots hands out the mapper snapshot of a realm.
type Snapshots interface {
	Snapshot(ctx context.Context, realmID string) (*mapper.Snapshot, error)
}

// Runs lists recorded synchronization runs.
type Runs interface {
	Recent(ctx context.Context, realmID, mapperName string, limit int) ([]models.SyncRun, error)
}

// Pusher creates missing role objects in the directory and removes them.
type Pusher interface {
	PushRoles(ctx context.Context, cfg mapper.Config) (rolesync.PushResult, error)
	RemoveRoleObject(ctx context.Context, cfg mapper.Config, roleName string) (string, error)
}

// Deps are the services the handlers work on.
type Deps struct {
	Users      identity.Resolver
	Mappers    Snapshots
	Dispatcher *federation.Dispatcher
	Runs       Runs
	Pusher     Pusher
}

// Valid reports whether every dependency is set.
func (d *Deps) Valid() bool {
	return d != nil && d.Users != nil && d.Mappers != nil && d.Dispatcher != nil && d.Runs != nil && d.Pusher != nil
}
