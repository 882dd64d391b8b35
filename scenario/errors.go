package scenario

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Exit codes of the sender and receiver processes.
const (
	ExitPass    = 0
	ExitFailure = 1
	ExitSpawn   = 2
)

// ErrSpawn is returned (wrapped) when a child process could not be started.
var ErrSpawn = errors.New("failed to start process")

// ProcessError is returned when a child process exits with a non-zero status.
type ProcessError struct {
	Role     Role
	Mode     AllocMode
	ExitCode int
}

// Error implements error.
func (e *ProcessError) Error() string {
	if e.ExitCode == ExitSpawn {
		return fmt.Sprintf("%s process (%s allocation) exited with status %d: it could not start its child process",
			e.Role, e.Mode, e.ExitCode)
	}
	return fmt.Sprintf("%s process (%s allocation) exited with status %d", e.Role, e.Mode, e.ExitCode)
}

// ExitCode maps the result of a role to the process exit code: ExitPass for success or a skipped scenario
// (ErrNotEnoughDevices), ExitSpawn if a child process could not be started, ExitFailure otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrNotEnoughDevices):
		return ExitPass
	case errors.Is(err, ErrSpawn):
		return ExitSpawn
	}
	return ExitFailure
}

// releaser runs cleanup functions in reverse order of registration.
type releaser struct {
	role Role
	fns  []func() error
	what []string
}

func (r *releaser) add(what string, fn func() error) {
	r.what = append(r.what, what)
	r.fns = append(r.fns, fn)
}

// release runs every cleanup function. If err is nil, it returns the first cleanup error; otherwise cleanup
// errors are only logged and err is returned.
func (r *releaser) release(err error) error {
	for ii := len(r.fns) - 1; ii >= 0; ii-- {
		if err2 := r.fns[ii](); err2 != nil {
			err2 = errors.WithMessagef(err2, "%s: releasing %s", r.role, r.what[ii])
			if err == nil {
				err = err2
			} else {
				klog.Errorf("%v", err2)
			}
		}
	}
	r.fns, r.what = nil, nil
	return err
}
