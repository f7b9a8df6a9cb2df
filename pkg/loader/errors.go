package loader

import "errors"

// Kinds of resolution failures. Use errors.Is on a *ResolveError.
var (
	// ErrSourceExecution means a script failed to compile or its top level
	// failed to run.
	ErrSourceExecution = errors.New("source execution failure")
	// ErrReference means the identifier does not name a module.
	ErrReference = errors.New("reference resolution failure")
	// ErrUnitNotFound means the module does not define the unit.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrUnitShape means the global is not a composable unit.
	ErrUnitShape = errors.New("unit wrong shape")
)

// ResolveError is returned by Resolve. Message is the text reported to the
// caller; Err keeps the full underlying error for logging.
type ResolveError struct {
	Kind    error
	Message string
	Err     error
}

func (e *ResolveError) Error() string { return e.Message }

func (e *ResolveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func resolveError(kind error, err error, message string) *ResolveError {
	return &ResolveError{Kind: kind, Message: message, Err: err}
}
