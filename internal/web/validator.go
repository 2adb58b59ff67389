package web

import (
	"github.com/go-playground/validator/v10"
)

// structValidator checks bound request bodies against their validate tags.
type structValidator struct {
	validate *validator.Validate
}

func newStructValidator() *structValidator {
	return &structValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements fiber.StructValidator.
func (v *structValidator) Validate(out any) error {
	return v.validate.Struct(out) //nolint:wrapcheck
}
