//go:build linux

// Package scenario runs the multi-device IPC memory sharing scenario: a sender process writes a data pattern
// to memory on one device and exports it; a receiver process imports it on another device, copies it back to
// the host and validates the pattern. The result is reported through process exit codes.
//
// The processes are the current program re-executed with ZEIPC_ROLE set, so programs using this package
// must call RunIfChild at the start of main (or TestMain):
//
//	func main() {
//		scenario.RunIfChild()
//		...
//		err := scenario.Run(ctx, scenario.DefaultConfig())
//	}
//
// Each process initializes its own driver: the driver state is never inherited.
package scenario

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run is the watcher: it starts the sender process (which starts the receiver) for cfg.AllocMode, and
// waits for it.
//
// It returns nil if the scenario passed or was skipped, a *ProcessError (wrapped) if the sender exited
// with a non-zero status, and an error wrapping ErrSpawn if the sender could not be started.
// Cancelling ctx kills the sender.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	klog.V(1).Infof("watcher: running scenario with %s allocation of %d bytes", cfg.AllocMode, cfg.BufferSize)
	sender, err := spawn(ctx, RoleSender, cfg)
	if err != nil {
		return err
	}
	return wait(sender, RoleSender, cfg.AllocMode)
}

// Result of the scenario for one allocation mode.
type Result struct {
	Mode    AllocMode
	Err     error
	Elapsed time.Duration
}

// Passed returns whether the scenario passed (or was skipped).
func (r Result) Passed() bool {
	return r.Err == nil
}

// RunAll runs the scenario for every allocation mode in AllocModes, in sequence, ignoring cfg.AllocMode.
// It returns one Result per mode, and an error if any of them failed.
func RunAll(ctx context.Context, cfg Config) ([]Result, error) {
	results := make([]Result, 0, len(AllocModes))
	var failed []AllocMode
	var firstErr error
	for _, mode := range AllocModes {
		cfg.AllocMode = mode
		start := time.Now()
		err := Run(ctx, cfg)
		results = append(results, Result{Mode: mode, Err: err, Elapsed: time.Since(start)})
		if err != nil {
			failed = append(failed, mode)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return results, errors.WithMessagef(firstErr, "scenario failed for allocation modes %v", failed)
	}
	return results, nil
}

// RunIfChild runs the sender or receiver role and exits, if this process was started as one (ZEIPC_ROLE is
// set). Otherwise it returns immediately.
func RunIfChild() {
	role := Role(os.Getenv(EnvPrefix + "_ROLE"))
	if role == "" || role == RoleWatcher {
		return
	}
	os.Exit(runChild(role))
}

func runChild(role Role) int {
	cfg, err := LoadConfig()
	if err != nil {
		klog.Errorf("%s: %v", role, err)
		return ExitFailure
	}
	if err = SetVerbosity(cfg.Verbosity); err != nil {
		klog.Warningf("%s: %v", role, err)
	}
	ctx := context.Background()
	switch role {
	case RoleSender:
		err = RunSender(ctx, cfg)
	case RoleReceiver:
		err = RunReceiver(ctx, cfg)
	default:
		err = errors.Errorf("unknown role %q", role)
	}
	code := ExitCode(err)
	switch {
	case err == nil:
		klog.V(1).Infof("%s: passed", role)
	case code == ExitPass:
		klog.Warningf("%s: skipping scenario: %v", role, err)
	default:
		klog.Errorf("%s failed: %v", role, err)
		klog.V(1).Infof("%s: %+v", role, err)
	}
	klog.Flush()
	return code
}
