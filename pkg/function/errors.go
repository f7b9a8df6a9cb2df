package function

import (
	"errors"
	"fmt"

	"github.com/openfroyo/function-starlark/pkg/loader"
)

// ErrorClass classifies why a request ended in a fatal result.
type ErrorClass string

const (
	// ErrorClassMissingIdentifier means the request names no composition.
	ErrorClassMissingIdentifier ErrorClass = "MissingCompositionIdentifier"

	// ErrorClassSourceExecution means a script failed to compile or run its
	// top level.
	ErrorClassSourceExecution ErrorClass = "SourceExecutionFailure"

	// ErrorClassReference means the identifier names no module.
	ErrorClassReference ErrorClass = "ReferenceResolutionFailure"

	// ErrorClassUnitNotFound means the module does not define the unit.
	ErrorClassUnitNotFound ErrorClass = "UnitNotFound"

	// ErrorClassUnitShape means the named global is not a composable unit.
	ErrorClassUnitShape ErrorClass = "UnitWrongShape"

	// ErrorClassInstantiation means the unit could not be constructed.
	ErrorClassInstantiation ErrorClass = "InstantiationFailure"

	// ErrorClassCompose means compose failed.
	ErrorClassCompose ErrorClass = "ComposeExecutionFailure"
)

// FunctionError is a classified request failure. Message is reported in the
// fatal result; Err carries the detail that is only logged.
// nolint:revive // FunctionError reads better than Error at call sites
type FunctionError struct {
	Class   ErrorClass
	Message string
	Err     error
}

// Error implements the error interface.
func (e *FunctionError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *FunctionError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *FunctionError) Is(target error) bool {
	t, ok := target.(*FunctionError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewMissingIdentifierError creates a missing identifier error.
func NewMissingIdentifierError(message string) *FunctionError {
	return &FunctionError{Class: ErrorClassMissingIdentifier, Message: message}
}

// NewInstantiationError creates an instantiation error.
func NewInstantiationError(err error) *FunctionError {
	return &FunctionError{
		Class:   ErrorClassInstantiation,
		Message: fmt.Sprintf("Instantiate exception: %s", err),
		Err:     err,
	}
}

// NewComposeError creates a compose error.
func NewComposeError(err error) *FunctionError {
	return &FunctionError{
		Class:   ErrorClassCompose,
		Message: fmt.Sprintf("Compose exception: %s", err),
		Err:     err,
	}
}

// NewResolveError classifies a resolution failure by its kind.
func NewResolveError(err error) *FunctionError {
	class := ErrorClassReference
	switch {
	case errors.Is(err, loader.ErrSourceExecution):
		class = ErrorClassSourceExecution
	case errors.Is(err, loader.ErrUnitNotFound):
		class = ErrorClassUnitNotFound
	case errors.Is(err, loader.ErrUnitShape):
		class = ErrorClassUnitShape
	}
	return &FunctionError{Class: class, Message: err.Error(), Err: err}
}

// ClassOf returns the class of err, or "" if err is not a FunctionError.
func ClassOf(err error) ErrorClass {
	var e *FunctionError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsMissingIdentifier returns true if the request named no composition.
func IsMissingIdentifier(err error) bool { return ClassOf(err) == ErrorClassMissingIdentifier }

// IsResolution returns true if the error happened while resolving the unit.
func IsResolution(err error) bool {
	switch ClassOf(err) {
	case ErrorClassSourceExecution, ErrorClassReference, ErrorClassUnitNotFound, ErrorClassUnitShape:
		return true
	}
	return false
}

// IsCompose returns true if compose failed.
func IsCompose(err error) bool { return ClassOf(err) == ErrorClassCompose }
