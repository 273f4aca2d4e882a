package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrInvalidRequest struct {
	error
	Fields []string
}

// NewErrInvalidRequest turns validator field errors into one message naming
// each offending field and the rule it broke.
func NewErrInvalidRequest(err error) *ErrInvalidRequest {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ErrInvalidRequest{error: err}
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s: failed on %s", fe.Namespace(), fe.Tag()))
	}
	return &ErrInvalidRequest{
		error:  fmt.Errorf("invalid request: %s", strings.Join(fields, ", ")),
		Fields: fields,
	}
}
