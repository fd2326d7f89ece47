package custom_errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError collects every problem found while checking a config or a
// job spec, so callers see all of them at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

// Add records err. Nil errors are ignored.
func (c *ValidationError) Add(err error) {
	if err == nil {
		return
	}
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) Addf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// Err returns c when at least one error was recorded, nil otherwise.
func (c *ValidationError) Err() error {
	if !c.HasError() {
		return nil
	}
	return c
}

func (c *ValidationError) Unwrap() []error {
	return c.Errors
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(c.Errors))
	for _, err := range c.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
