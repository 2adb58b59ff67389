package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/GoPowerDNS-Admin/rolesync/internal/directory"
	"github.com/GoPowerDNS-Admin/rolesync/internal/federation"
	"github.com/GoPowerDNS-Admin/rolesync/internal/identity"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapper"
	"github.com/GoPowerDNS-Admin/rolesync/internal/mapping"
	"github.com/GoPowerDNS-Admin/rolesync/internal/rolesync"
	"github.com/GoPowerDNS-Admin/rolesync/internal/store"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusOf maps err to the HTTP status answered for it.
func StatusOf(err error) int {
	var (
		fe *fiber.Error
		de *directory.DirectoryError
		ve validator.ValidationErrors
	)

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, mapping.ErrReadOnlyViolation),
		errors.Is(err, rolesync.ErrSyncInProgress),
		errors.Is(err, directory.ErrObjectExists):
		return fiber.StatusConflict
	case errors.Is(err, store.ErrRoleNotFound),
		errors.Is(err, store.ErrNotGranted),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, mapper.ErrMapperNotFound),
		errors.Is(err, directory.ErrObjectNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &ve),
		errors.Is(err, mapper.ErrInvalidMapper),
		errors.Is(err, store.ErrInvalidRole),
		errors.Is(err, federation.ErrRealmMismatch):
		return fiber.StatusBadRequest
	case errors.As(err, &de):
		if de.Temporary() {
			return fiber.StatusServiceUnavailable
		}

		return fiber.StatusBadGateway
	}

	return fiber.StatusInternalServerError
}

// ErrorHandler answers err as JSON with the status StatusOf picks.
func ErrorHandler(c fiber.Ctx, err error) error {
	code := StatusOf(err)

	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")

		msg = "internal server error"
	}

	return c.Status(code).JSON(ErrorResponse{Error: msg})
}
