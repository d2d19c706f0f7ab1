// Package validate holds the shared request validator with the domain's
// custom tags registered.
package validate

import (
	"github.com/go-playground/validator/v10"

	"github.com/beetlebooks/beetlebooks/internal/books"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for empty tags or nil funcs
	_ = val.RegisterValidation("account_name", func(fl validator.FieldLevel) bool {
		return books.ValidAccountName(fl.Field().String())
	})
	_ = val.RegisterValidation("account_glob", func(fl validator.FieldLevel) bool {
		return books.ValidGlob(fl.Field().String())
	})
	return val
}

// Struct validates a request DTO against its validate tags.
func Struct(s any) error {
	return v.Struct(s)
}
