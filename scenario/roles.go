//go:build linux

package scenario

import (
	"context"
	"os"
	"os/exec"

	"github.com/gomlx/zeipc/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// setup is what both roles create before exchanging memory: the backend, the selected device, a context,
// a command list and a command queue for the device.
type setup struct {
	role    Role
	backend backends.Backend
	sel     Selection
	ctx     backends.Context
	list    backends.CommandList
	queue   backends.CommandQueue
}

// newBackend creates the backend configured in cfg, or the default one.
func newBackend(cfg Config) (backends.Backend, error) {
	if cfg.Backend != "" {
		return backends.NewWithConfig(cfg.Backend)
	}
	return backends.New()
}

// newSetup initializes the driver of this process and selects the device of role. Everything created is
// registered in r. It returns ErrNotEnoughDevices if there are fewer than 2 devices.
func newSetup(role Role, cfg Config, r *releaser) (*setup, error) {
	s := &setup{role: role}
	var err error
	s.backend, err = newBackend(cfg)
	if err != nil {
		return nil, err
	}
	r.add("backend", func() error {
		s.backend.Finalize()
		return nil
	})
	devices, err := s.backend.Devices()
	if err != nil {
		return nil, err
	}
	s.sel, err = SelectDevice(role, devices)
	if err != nil {
		return nil, err
	}
	device := s.sel.Device.Index
	if s.ctx, err = s.backend.NewContext(); err != nil {
		return nil, err
	}
	r.add("context", s.ctx.Destroy)
	if s.list, err = s.ctx.NewCommandList(device); err != nil {
		return nil, err
	}
	r.add("command list", s.list.Destroy)
	if s.queue, err = s.ctx.NewCommandQueue(device); err != nil {
		return nil, err
	}
	r.add("command queue", s.queue.Destroy)
	klog.V(1).Infof("%s: using %s on device %s", role, s.backend.Description(), s.sel.Device)
	return s, nil
}

// copyAndWait records a copy of size bytes in the command list, closes it, executes it and waits for it.
func (s *setup) copyAndWait(dst, src backends.Buffer, size int) error {
	if err := s.list.AppendMemoryCopy(dst, src, size); err != nil {
		return errors.WithMessagef(err, "%s: appending memory copy", s.role)
	}
	if err := s.list.Close(); err != nil {
		return errors.WithMessagef(err, "%s: closing command list", s.role)
	}
	if err := s.queue.ExecuteCommandLists(s.list); err != nil {
		return errors.WithMessagef(err, "%s: executing command list", s.role)
	}
	if err := s.queue.Synchronize(); err != nil {
		return errors.WithMessagef(err, "%s: synchronizing command queue", s.role)
	}
	return nil
}

// executable returns the path of the program re-executed for child roles.
var executable = os.Executable

// spawn starts the current program with the given role. Its environment carries cfg, and extraFiles become
// its descriptors 3, 4, ...
func spawn(ctx context.Context, role Role, cfg Config, extraFiles ...*os.File) (*exec.Cmd, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithMessagef(err, "%s process not started", role)
	}
	exe, err := executable()
	if err != nil {
		return nil, errors.Wrapf(ErrSpawn, "%s process: %v", role, err)
	}
	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = cfg.environ(role)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = extraFiles
	if err = cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrSpawn, "%s process %q: %v", role, exe, err)
	}
	klog.V(1).Infof("started %s process (pid %d)", role, cmd.Process.Pid)
	return cmd, nil
}

// wait for a child process, converting a non-zero exit status to *ProcessError.
func wait(cmd *exec.Cmd, role Role, mode AllocMode) error {
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return errors.WithStack(&ProcessError{Role: role, Mode: mode, ExitCode: exitErr.ExitCode()})
	}
	return errors.Wrapf(err, "waiting for %s process", role)
}
