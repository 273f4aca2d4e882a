package validator

import (
	"github.com/go-playground/validator/v10"
)

// Rule binds a struct tag to the function checking fields carrying it.
type Rule struct {
	Tag string
	Fn  validator.Func
}

// Validator checks request bodies against their struct tags plus the custom
// rules it was built with. Failures come back as *ErrInvalidRequest.
type Validator struct {
	validate *validator.Validate
}

// NewValidator panics on a rule with an empty tag or a nil function, both of
// which are programming errors.
func NewValidator(rules ...Rule) *Validator {
	v := validator.New()
	for _, r := range rules {
		if err := v.RegisterValidation(r.Tag, r.Fn); err != nil {
			panic(err)
		}
	}
	return &Validator{validate: v}
}

func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return NewErrInvalidRequest(err)
	}
	return nil
}
