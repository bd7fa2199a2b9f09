package validator

import (
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground struct validation with the tag name the
// rest of the codebase uses.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct validates struct fields against their validate tags.
func (v *Validator) Struct(s any) error {
	return v.v.Struct(s)
}

// Var validates a single value against a rule set, e.g. "required,min=10".
func (v *Validator) Var(value any, rules string) error {
	return v.v.Var(value, rules)
}
