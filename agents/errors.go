package agents

import "github.com/itsneelabh/docrouter/core"

// ProcessingError is returned by agents. Its message is shown to HTTP clients
// as the error detail, so it reads like "Error processing email: <cause>".
// Kind is a core sentinel for errors.Is checks.
type ProcessingError struct {
	Message string
	Kind    error
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func errUnsupportedFormat() error {
	return &ProcessingError{Message: "Unsupported format", Kind: core.ErrUnsupportedFormat}
}

func errInvalidContent(message string) error {
	return &ProcessingError{Message: message, Kind: core.ErrInvalidContent}
}

// wrapFailure prefixes cause with "Error processing <what>"
func wrapFailure(what string, cause error) error {
	return &ProcessingError{
		Message: "Error processing " + what,
		Kind:    core.ErrExtractionFailed,
		Err:     cause,
	}
}
