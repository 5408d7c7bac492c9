package cmd

import (
	"errors"
	"strconv"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
)

// Exit codes for hitshot CLI
const (
	// ExitSuccess indicates every request completed below status 400
	ExitSuccess = 0

	// ExitRequestFailure indicates an error status, a cancelled request or a
	// failed threshold
	ExitRequestFailure = 1

	// ExitConfigError indicates a workspace or request building error
	ExitConfigError = 3

	// ExitNetworkError indicates a connection, TLS or timeout error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError carries a process exit code. Err may be nil when the failure
// was already reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsageError, Err: err}
}

func configError(err error) error {
	return &ExitError{Code: ExitConfigError, Err: err}
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitRequestFailure
}

// responseExitCode maps a finished task to the exit code it deserves
func responseExitCode(resp *http.Response) int {
	var buildErr *http.ClientBuildError
	var execErr *http.RequestExecutionError

	switch {
	case errors.As(resp.Err, &buildErr):
		return ExitConfigError
	case errors.As(resp.Err, &execErr):
		return ExitNetworkError
	case resp.Err != nil:
		return ExitRequestFailure
	case resp.StatusCode >= 400:
		return ExitRequestFailure
	}
	return ExitSuccess
}
