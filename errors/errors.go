// Package errors defines the typed errors surfaced by the lock manager
// registry. Callers are expected to branch on them with the Is*/As*
// helpers rather than on message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Base carries the user facing message shared by all typed errors.
type Base struct {
	Msg string
}

// NotFoundError reports a lookup for a lock manager name that was
// never registered.
type NotFoundError struct {
	Base
	// Name is the missing manager name.
	Name string
}

// NotFound is a helper function to return a NotFoundError.
func NotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{
		Base: Base{Msg: fmt.Sprintf(format, args...)},
	}
}

// NotFoundName returns a NotFoundError carrying the missing name.
func NotFoundName(name string) *NotFoundError {
	return &NotFoundError{
		Base: Base{Msg: fmt.Sprintf("no lock manager defined with the name %q", name)},
		Name: name,
	}
}

// IsNotFound checks if err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, &NotFoundError{})
}

// AsNotFound returns err as NotFoundError or nil if conversion
// is not successful.
func AsNotFound(err error) (nerr *NotFoundError, b bool) {
	if errors.As(err, &nerr) {
		return nerr, true
	}
	return nil, false
}

// Error interface method.
func (e *NotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "lock manager not found"
}

// Is checks if t is a NotFoundError.
func (e *NotFoundError) Is(t error) bool {
	_, ok := t.(*NotFoundError)
	return ok
}

// ConfigError reports malformed registration input. It is raised only
// while a registry is constructed and is fatal to the whole registry.
type ConfigError struct {
	Base
	Errors []error
}

// Config is a helper function to return a ConfigError.
func Config(format string, args ...any) *ConfigError {
	return &ConfigError{
		Base: Base{Msg: fmt.Sprintf(format, args...)},
	}
}

// IsConfig checks if err is a config error.
func IsConfig(err error) bool {
	return errors.Is(err, &ConfigError{})
}

// AsConfig returns err as ConfigError or nil if conversion is not
// successful.
func AsConfig(err error) (cerr *ConfigError, b bool) {
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// AddError appends a detail error and returns e for chaining.
func (e *ConfigError) AddError(err error) *ConfigError {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
	return e
}

// Error interface method.
func (e *ConfigError) Error() string {
	if len(e.Errors) == 0 {
		if e.Msg != "" {
			return e.Msg
		}
		return "invalid lock manager configuration"
	}

	sb := strings.Builder{}
	sb.WriteString(e.Msg)
	for _, err := range e.Errors {
		sb.WriteString("; ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Is checks if t is a ConfigError.
func (e *ConfigError) Is(t error) bool {
	_, ok := t.(*ConfigError)
	return ok
}
