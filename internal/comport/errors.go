// internal/comport/errors.go
package comport

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration reports a setting the link cannot use
	ErrInvalidConfiguration = errors.New("invalid comport configuration")
	// ErrConnectionFailure reports that the port could not be opened
	ErrConnectionFailure = errors.New("comport connection failure")
	// ErrDeployFailure reports that the firmware upload tool failed
	ErrDeployFailure = errors.New("firmware deploy failure")
)

// DeployError carries the output of a failed deploy run
type DeployError struct {
	Binary   string
	Firmware string
	Port     string
	Output   []byte
	Err      error
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("deploy %s to %s failed: %v", e.Firmware, e.Port, e.Err)
}

// Unwrap matches both ErrDeployFailure and the underlying cause
func (e *DeployError) Unwrap() []error {
	return []error{ErrDeployFailure, e.Err}
}
