package configchannel

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed attribute change.
type ErrorKind int

const (
	// NotFound means the backend has no way to reach the attribute: a missing sysfs file, an
	// attribute without a control code, or a control code the driver does not know.
	NotFound ErrorKind = iota
	// Rejected means the driver refused the value or the write failed.
	Rejected
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	// ErrNotFound matches any ConfigError of kind NotFound.
	ErrNotFound = errors.New("attribute not found")
	// ErrRejected matches any ConfigError of kind Rejected.
	ErrRejected = errors.New("attribute change rejected")
)

// A ConfigError is returned by every failed Channel call.
type ConfigError struct {
	Kind      ErrorKind
	Attribute Attribute
	Backend   string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s %s", e.Backend, e.Attribute, e.Kind)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Backend, e.Attribute, e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrRejected:
		return e.Kind == Rejected
	}
	return false
}
