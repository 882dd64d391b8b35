//go:build linux && cgo

package levelzero

import (
	"testing"

	"github.com/gomlx/zeipc/backends"
	"github.com/stretchr/testify/require"
)

// newBackend creates the Level Zero backend, or skips the test if no driver is installed.
func newBackend(t *testing.T) backends.Backend {
	b, err := backends.NewWithConfig(BackendName)
	if err != nil {
		t.Skipf("Level Zero not available: %v", err)
	}
	t.Cleanup(b.Finalize)
	return b
}

func TestDevices(t *testing.T) {
	b := newBackend(t)
	devices, err := b.Devices()
	require.NoError(t, err)
	for ii, device := range devices {
		require.Equal(t, ii, device.Index)
		t.Logf("device %s", device)
	}
}

func TestReserveAndMap(t *testing.T) {
	b := newBackend(t)
	devices, err := b.Devices()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("no Level Zero devices")
	}
	ctx, err := b.NewContext()
	require.NoError(t, err)
	mem, err := ctx.ReserveAndMap(0, 4096)
	require.NoError(t, err)
	require.GreaterOrEqual(t, mem.Size(), 4096)

	host, err := ctx.AllocHost(4096)
	require.NoError(t, err)
	for ii := range host.Bytes() {
		host.Bytes()[ii] = byte(ii)
	}
	list, err := ctx.NewCommandList(0)
	require.NoError(t, err)
	queue, err := ctx.NewCommandQueue(0)
	require.NoError(t, err)
	require.NoError(t, list.AppendMemoryCopy(mem, host, 4096))
	require.NoError(t, list.Close())
	require.NoError(t, queue.ExecuteCommandLists(list))
	require.NoError(t, queue.Synchronize())

	require.NoError(t, list.Destroy())
	require.NoError(t, queue.Destroy())
	require.NoError(t, host.Free())
	require.NoError(t, mem.Free())
	require.NoError(t, ctx.Destroy())
}
