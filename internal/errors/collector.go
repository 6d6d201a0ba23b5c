package errors

import (
	"fmt"
	"strings"
)

// FieldError is a single rejected field at the import boundary.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (fe *FieldError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fe.Field, fe.Message)
}

// Collector gathers field errors so a whole input can be reported at once.
type Collector struct {
	Errors []*FieldError
}

// Add records a field error.
func (c *Collector) Add(field string, value interface{}, message string) {
	c.Errors = append(c.Errors, &FieldError{Field: field, Value: value, Message: message})
}

// Addf records a field error with a formatted message.
func (c *Collector) Addf(field string, value interface{}, format string, args ...interface{}) {
	c.Add(field, value, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors.
func (c *Collector) HasErrors() bool {
	return len(c.Errors) > 0
}

// Err converts the collection to a FactoryError with the given code, or nil.
func (c *Collector) Err(code string) error {
	if !c.HasErrors() {
		return nil
	}

	messages := make([]string, 0, len(c.Errors))
	ctx := make(map[string]interface{}, len(c.Errors))
	for _, fe := range c.Errors {
		messages = append(messages, fe.Error())
		ctx[fe.Field] = fe.Value
	}

	return &FactoryError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     strings.Join(messages, "; "),
		Context:     ctx,
		Recoverable: true,
	}
}
