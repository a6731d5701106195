// Package validation holds the validator setup shared by the engine and the HTTP API.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", NotBlank)
	return v
}

// NotBlank rejects strings that are empty after trimming whitespace.
func NotBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
