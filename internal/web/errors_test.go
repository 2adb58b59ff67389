package web

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error", fiber.NewError(fiber.StatusUnauthorized, "no"), fiber.StatusUnauthorized},
		{"role not found", fmt.Errorf("%w: test/x", store.ErrRoleNotFound), fiber.StatusNotFound},
		{"not granted", store.ErrNotGranted, fiber.StatusNotFound},
		{"user not found", identity.ErrUserNotFound, fiber.StatusNotFound},
		{"user not federated", mapping.ErrUserNotFederated, fiber.StatusNotFound},
		{"mapper not found", mapper.ErrMapperNotFound, fiber.StatusNotFound},
		{"object not found", directory.ErrObjectNotFound, fiber.StatusNotFound},
		{"read only", fmt.Errorf("%w: realmRole1", mapping.ErrReadOnlyViolation), fiber.StatusConflict},
		{"sync in progress", rolesync.ErrSyncInProgress, fiber.StatusConflict},
		{"invalid mapper", mapper.ErrInvalidMapper, fiber.StatusBadRequest},
		{"realm mismatch", federation.ErrRealmMismatch, fiber.StatusBadRequest},
		{"validation", validator.ValidationErrors{}, fiber.StatusBadRequest},
		{
			"transient directory failure",
			&directory.DirectoryError{Kind: directory.Transient, Op: "search", Err: context.DeadlineExceeded},
			fiber.StatusServiceUnavailable,
		},
		{
			"permanent directory failure",
			fmt.Errorf("mapper m: %w", &directory.DirectoryError{Kind: directory.Permanent, Op: "search", Err: errors.New("bad filter")}), //nolint:goerr113
			fiber.StatusBadGateway,
		},
		{"anything else", errors.New("boom"), fiber.StatusInternalServerError}, //nolint:goerr113
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}
