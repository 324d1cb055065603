package config

import (
	"fmt"

	"github.com/pkg/errors"
)

// NewValidationError returns an error specifying an error occurred at the given path.
func NewValidationError(path string, err error) error {
	return errors.Wrapf(err, "Error validating. Path: %q", path)
}

type fieldRequiredError struct {
	path  string
	field string
}

func (e *fieldRequiredError) Error() string {
	return fmt.Sprintf("Error validating. Path: %q Error: %q is required", e.path, e.field)
}

// NewFieldRequiredError returns an error specifying that a required field is missing at the
// given path.
func NewFieldRequiredError(path, field string) error {
	return &fieldRequiredError{path: path, field: field}
}

// GetFieldFromFieldRequiredError returns the name of the missing field, or the empty string if
// err is not a field required error.
func GetFieldFromFieldRequiredError(err error) string {
	var fieldErr *fieldRequiredError
	if errors.As(err, &fieldErr) {
		return fieldErr.field
	}
	return ""
}
