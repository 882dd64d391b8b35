//go:build linux

package simulated

import (
	"os"
	"testing"

	"github.com/gomlx/zeipc/backends"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newBackend(t *testing.T, config string) backends.Backend {
	b, err := backends.NewWithConfig(BackendName + ":" + config)
	require.NoError(t, err)
	t.Cleanup(b.Finalize)
	return b
}

func TestConfig(t *testing.T) {
	devices := must.M1(newBackend(t, "").Devices())
	require.Len(t, devices, DefaultNumDevices)
	require.Equal(t, DeviceUUID(0), devices[0].UUID)
	require.Equal(t, DeviceUUID(1), devices[1].UUID)
	require.NotEqual(t, devices[0].UUID, devices[1].UUID)

	devices = must.M1(newBackend(t, "devices=1").Devices())
	require.Len(t, devices, 1)

	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	devices = must.M1(newBackend(t, "uuids=00112233445566778899aabbccddeeff/00112233-4455-6677-8899-aabbccddeeff").Devices())
	require.Len(t, devices, 2)
	require.Equal(t, id, devices[0].UUID)
	require.Equal(t, id, devices[1].UUID)

	for _, config := range []string{"devices=x", "uuids=nope", "fail=reboot", "turbo"} {
		_, err := backends.NewWithConfig(BackendName + ":" + config)
		require.Errorf(t, err, "config %q should have failed", config)
	}
}

func TestShuffle(t *testing.T) {
	devices := must.M1(newBackend(t, "devices=3,shuffle").Devices())
	offset := os.Getpid() % 3
	for ii, device := range devices {
		require.Equal(t, ii, device.Index)
		require.Equal(t, DeviceUUID((ii+offset)%3), device.UUID)
	}
}

// exportImport exports mem and imports it on device, using a duplicate descriptor as if it had been
// received from another process.
func exportImport(t *testing.T, ctx backends.Context, mem backends.Memory, device int) (backends.Memory, int) {
	handle, err := ctx.GetIPCHandle(mem)
	require.NoError(t, err)
	fd, err := unix.Dup(handle.FD())
	require.NoError(t, err)
	imported, err := ctx.OpenIPCHandle(device, handle.WithFD(fd))
	require.NoError(t, err)
	return imported, fd
}

func TestCopyThroughIPC(t *testing.T) {
	for _, config := range []string{"", "corrupt"} {
		t.Run("config="+config, func(t *testing.T) {
			b := newBackend(t, config)
			ctx := must.M1(b.NewContext())
			const size = 4096
			mem := must.M1(ctx.AllocDevice(0, size))
			src := must.M1(ctx.AllocHost(size))
			dst := must.M1(ctx.AllocHost(size))
			for ii := range src.Bytes() {
				src.Bytes()[ii] = byte(ii)
			}

			list := must.M1(ctx.NewCommandList(0))
			queue := must.M1(ctx.NewCommandQueue(0))
			require.NoError(t, list.AppendMemoryCopy(mem, src, size))
			require.NoError(t, list.Close())
			require.Error(t, list.AppendMemoryCopy(mem, src, size), "list is closed")
			require.NoError(t, queue.ExecuteCommandLists(list))
			require.NoError(t, queue.Synchronize())

			imported, fd := exportImport(t, ctx, mem, 1)
			require.Equal(t, size, imported.Size())
			list2 := must.M1(ctx.NewCommandList(1))
			queue2 := must.M1(ctx.NewCommandQueue(1))
			require.NoError(t, list2.AppendMemoryCopy(dst, imported, size))
			require.NoError(t, list2.Close())
			require.NoError(t, queue2.ExecuteCommandLists(list2))
			require.NoError(t, queue2.Synchronize())
			if config == "corrupt" {
				require.NotEqual(t, src.Bytes(), dst.Bytes())
				require.Equal(t, src.Bytes()[size/2]^0xff, dst.Bytes()[size/2])
			} else {
				require.Equal(t, src.Bytes(), dst.Bytes())
			}

			require.Error(t, imported.Free(), "imported memory is released with CloseIPCHandle")
			require.NoError(t, ctx.CloseIPCHandle(imported))
			require.NoError(t, unix.Close(fd))
			for _, release := range []func() error{list.Destroy, list2.Destroy, queue.Destroy, queue2.Destroy,
				mem.Free, src.Free, dst.Free} {
				require.NoError(t, release())
			}
			require.NoError(t, ctx.Destroy())
		})
	}
}

func TestReserveAndMap(t *testing.T) {
	ctx := must.M1(newBackend(t, "").NewContext())
	mem := must.M1(ctx.ReserveAndMap(1, 4096))
	require.Equal(t, PageSize, mem.Size())
	mem2 := must.M1(ctx.ReserveAndMap(1, PageSize+1))
	require.Equal(t, 2*PageSize, mem2.Size())
	require.NoError(t, mem.Free())
	require.NoError(t, mem2.Free())
	require.Error(t, mem2.Free(), "double free")
	require.NoError(t, ctx.Destroy())
}

func TestLeakDetection(t *testing.T) {
	ctx := must.M1(newBackend(t, "").NewContext())
	_ = must.M1(ctx.AllocHost(128))
	err := ctx.Destroy()
	require.ErrorContains(t, err, "1 live objects")
	require.ErrorContains(t, err, "host memory (128 bytes)")
}

func TestInjectedFailures(t *testing.T) {
	for _, op := range validOps {
		t.Run(op, func(t *testing.T) {
			b := newBackend(t, "fail="+op)
			ctx := must.M1(b.NewContext())
			var err error
			switch op {
			case OpAlloc:
				_, err = ctx.AllocDevice(0, 4096)
			case OpReserve:
				_, err = ctx.ReserveAndMap(0, 4096)
			case OpGetIPC:
				mem := must.M1(ctx.AllocDevice(0, 4096))
				_, err = ctx.GetIPCHandle(mem)
			case OpOpenIPC:
				_, err = ctx.OpenIPCHandle(1, backends.IPCHandle{})
			case OpCopy:
				list := must.M1(ctx.NewCommandList(0))
				host := must.M1(ctx.AllocHost(16))
				err = list.AppendMemoryCopy(host, host, 16)
			}
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInjected), "unexpected error %+v", err)
		})
	}
}

func TestOpenForeignHandle(t *testing.T) {
	ctx := must.M1(newBackend(t, "").NewContext())
	_, err := ctx.OpenIPCHandle(0, backends.IPCHandle{})
	require.ErrorContains(t, err, "not exported by the simulated backend")
	_, err = ctx.OpenIPCHandle(7, backends.IPCHandle{})
	require.ErrorContains(t, err, "invalid device index 7")
}
