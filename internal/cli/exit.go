package cli

import "errors"

// Process exit codes.
const (
	ExitSuccess = 0
	// ExitFailure: the input was read but rejected, e.g. an invalid profile.
	ExitFailure = 1
	// ExitCommandError: the command could not run (bad path, store unavailable,
	// unknown device or profile).
	ExitCommandError = 2
)

// ExitError carries the exit code a command failed with. Commands print their
// own diagnostics before returning one, so main only sets the exit status.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code; errors without one are
// failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
