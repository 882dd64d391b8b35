//go:build linux && cgo

package ze

import (
	"flag"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var flagLoader = flag.String("loader", "", "name or path of the Level Zero loader library, defaults to searching for libze_loader.so.1")

func init() {
	klog.InitFlags(nil)
}

// getLoader loads and initializes the Level Zero loader, or skips the test if it is not available.
func getLoader(t *testing.T) *Loader {
	loader, err := Load(*flagLoader)
	if err != nil {
		t.Skipf("Level Zero loader not available: %v", err)
	}
	if err = loader.Init(0); err != nil {
		t.Skipf("zeInit failed, no Level Zero driver installed? %v", err)
	}
	return loader
}

func TestResultString(t *testing.T) {
	require.Equal(t, "ZE_RESULT_SUCCESS", ResultSuccess.String())
	require.Equal(t, "ZE_RESULT_ERROR_INVALID_ARGUMENT", ResultErrorInvalidArgument.String())
	require.Equal(t, "ze_result_t(0x1234)", Result(0x1234).String())
}

func TestToError(t *testing.T) {
	require.NoError(t, toError("zeInit", 0))
	err := toError("zeMemOpenIpcHandle", 0x78000004)
	require.Error(t, err)
	require.ErrorContains(t, err, "zeMemOpenIpcHandle returned ZE_RESULT_ERROR_INVALID_ARGUMENT")

	wrapped := errors.WithMessage(err, "receiver")
	result, ok := ResultOf(wrapped)
	require.True(t, ok)
	require.Equal(t, ResultErrorInvalidArgument, result)

	_, ok = ResultOf(errors.New("not a driver error"))
	require.False(t, ok)
}

func TestLoad(t *testing.T) {
	loader := getLoader(t)
	fmt.Printf("Loaded %s\n", loader)

	// Loaders are cached, by name and by path.
	loader2, err := Load(*flagLoader)
	require.NoError(t, err)
	require.Same(t, loader, loader2)
	loader3, err := Load(loader.Path())
	require.NoError(t, err)
	require.Same(t, loader, loader3)

	_, err = Load("/nonexistent/libmilliways_loader.so")
	require.Error(t, err)
}

func TestDevices(t *testing.T) {
	loader := getLoader(t)
	driver, err := loader.DefaultDriver()
	require.NoError(t, err)
	devices, err := driver.Devices()
	require.NoError(t, err)
	for ii, device := range devices {
		props, err := device.Properties()
		require.NoError(t, err)
		fmt.Printf("\tdevice #%d: %s\n", ii, props)
		require.NotEmpty(t, props.Name)
	}
}

func TestCopyAndIPCHandle(t *testing.T) {
	loader := getLoader(t)
	driver, err := loader.DefaultDriver()
	require.NoError(t, err)
	devices, err := driver.Devices()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("no Level Zero devices")
	}
	device := devices[0]
	ctx, err := driver.NewContext()
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Destroy()) }()

	list, err := ctx.NewCommandList(device, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, list.Destroy()) }()
	queue, err := ctx.NewCommandQueue(device, 0, CommandQueueModeDefault, CommandQueuePriorityNormal)
	require.NoError(t, err)
	defer func() { require.NoError(t, queue.Destroy()) }()

	const size = 4096
	deviceMem, err := ctx.AllocDevice(device, size, 1, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Free(deviceMem)) }()
	src, err := ctx.AllocHost(size, 1, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Free(src)) }()
	dst, err := ctx.AllocHost(size, 1, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, ctx.Free(dst)) }()

	srcBytes, dstBytes := HostBytes(src, size), HostBytes(dst, size)
	for ii := range srcBytes {
		srcBytes[ii] = byte(ii * 7)
		dstBytes[ii] = 0
	}
	require.NoError(t, list.AppendMemoryCopy(deviceMem, src, size))
	require.NoError(t, list.AppendMemoryCopy(dst, deviceMem, size))
	require.NoError(t, list.Close())
	require.NoError(t, queue.ExecuteCommandLists(list))
	require.NoError(t, queue.Synchronize(InfiniteTimeout))
	require.Equal(t, srcBytes, dstBytes)

	handle, err := ctx.GetIPCHandle(deviceMem)
	if result, ok := ResultOf(err); ok && result == ResultErrorUnsupportedFeature {
		t.Skipf("IPC not supported by driver: %v", err)
	}
	require.NoError(t, err)
	require.NotEqual(t, IPCMemHandle{}, handle)
}
