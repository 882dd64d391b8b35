//go:build linux

package scenario

import (
	"context"
	"os"
	"testing"

	_ "github.com/gomlx/zeipc/backends/simulated"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// TestMain dispatches the sender and receiver roles: the test binary re-executes itself for them.
func TestMain(m *testing.M) {
	RunIfChild()
	os.Exit(m.Run())
}

func simConfig(backend string) Config {
	cfg := DefaultConfig()
	cfg.Backend = backend
	return cfg
}

func TestRunPasses(t *testing.T) {
	for _, backend := range []string{
		"sim",
		"sim:shuffle",
		"sim:devices=4",
		"sim:devices=2,shuffle",
		"sim:uuids=00000000-0000-0000-0000-000000000002/00000000-0000-0000-0000-000000000001",
	} {
		for _, mode := range AllocModes {
			t.Run(backend+"/"+string(mode), func(t *testing.T) {
				cfg := simConfig(backend)
				cfg.AllocMode = mode
				require.NoError(t, Run(context.Background(), cfg))
			})
		}
	}
}

func TestRunOddSizes(t *testing.T) {
	for _, size := range []int{1, 257, 100_000} {
		cfg := simConfig("sim")
		cfg.BufferSize = size
		cfg.PatternSeed = 7
		require.NoErrorf(t, Run(context.Background(), cfg), "buffer size %d", size)
	}
}

func TestRunSkipsWithOneDevice(t *testing.T) {
	require.NoError(t, Run(context.Background(), simConfig("sim:devices=1")))
	require.NoError(t, Run(context.Background(), simConfig("sim:devices=0")))
}

func TestRunEqualUUIDs(t *testing.T) {
	// Ambiguous selection: both roles use device 0, and the data still goes through.
	cfg := simConfig("sim:uuids=5f0e6b9c-0000-4000-8000-000000000000/5f0e6b9c-0000-4000-8000-000000000000")
	require.NoError(t, Run(context.Background(), cfg))
}

func TestRunFailures(t *testing.T) {
	for _, backend := range []string{
		"sim:corrupt",
		"sim:fail=alloc",
		"sim:fail=get_ipc",
		"sim:fail=open_ipc",
		"sim:fail=copy",
	} {
		t.Run(backend, func(t *testing.T) {
			err := Run(context.Background(), simConfig(backend))
			require.Error(t, err)
			var processErr *ProcessError
			require.True(t, errors.As(err, &processErr), "expected *ProcessError, got %v", err)
			require.Equal(t, RoleSender, processErr.Role)
			require.Equal(t, ExitFailure, processErr.ExitCode)
		})
	}
	cfg := simConfig("sim:fail=reserve")
	cfg.AllocMode = AllocReserved
	require.Error(t, Run(context.Background(), cfg))
}

func TestRunAll(t *testing.T) {
	results, err := RunAll(context.Background(), simConfig("sim"))
	require.NoError(t, err)
	require.Len(t, results, len(AllocModes))
	for ii, result := range results {
		require.Equal(t, AllocModes[ii], result.Mode)
		require.True(t, result.Passed())
	}

	// Only the reserved variant fails.
	results, err = RunAll(context.Background(), simConfig("sim:fail=reserve"))
	require.ErrorContains(t, err, "scenario failed for allocation modes [reserved]")
	require.True(t, results[0].Passed())
	require.False(t, results[1].Passed())
}

func TestRunSpawnFailure(t *testing.T) {
	saved := executable
	defer func() { executable = saved }()
	executable = func() (string, error) { return "/nonexistent/zeipc", nil }
	err := Run(context.Background(), simConfig("sim"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSpawn))
	require.Equal(t, ExitSpawn, ExitCode(err))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, simConfig("sim"))
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, errors.Is(err, ErrSpawn))
	require.Equal(t, ExitFailure, ExitCode(err))
}

func TestRunSenderDirectly(t *testing.T) {
	// With a single device the sender skips without starting the receiver.
	err := RunSender(context.Background(), simConfig("sim:devices=1"))
	require.True(t, errors.Is(err, ErrNotEnoughDevices))
	require.Equal(t, ExitPass, ExitCode(err))
}
