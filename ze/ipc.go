//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"unsafe"

	"github.com/pkg/errors"
)

// IPCHandleSize is ZE_MAX_IPC_HANDLE_SIZE.
const IPCHandleSize = 64

// IPCMemHandle is the opaque ze_ipc_mem_handle_t. On Linux drivers embed a file descriptor valid in the
// exporting process in it, which has to be passed to the importing process (e.g. with SCM_RIGHTS).
type IPCMemHandle [IPCHandleSize]byte

// IPCMemoryFlags is ze_ipc_memory_flags_t.
type IPCMemoryFlags uint32

// GetIPCHandle calls zeMemGetIpcHandle for a device allocation of the context.
func (ctx *Context) GetIPCHandle(ptr unsafe.Pointer) (IPCMemHandle, error) {
	var handle IPCMemHandle
	if err := ctx.checkValid(); err != nil {
		return handle, err
	}
	cHandle := cMalloc[C.ze_ipc_mem_handle_t]()
	defer cFree(cHandle)
	if err := toError("zeMemGetIpcHandle", C.call_zeMemGetIpcHandle(ctx.api(), ctx.c, ptr, cHandle)); err != nil {
		return handle, errors.WithMessagef(err, "exporting IPC handle for %p", ptr)
	}
	copy(handle[:], cDataToSlice[byte](unsafe.Pointer(&cHandle.data[0]), IPCHandleSize))
	return handle, nil
}

// OpenIPCHandle calls zeMemOpenIpcHandle, mapping memory exported by another process into this context,
// for use by device. The returned pointer must be released with CloseIPCHandle.
func (ctx *Context) OpenIPCHandle(device *Device, handle IPCMemHandle, flags IPCMemoryFlags) (unsafe.Pointer, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	cHandle := cMalloc[C.ze_ipc_mem_handle_t]()
	defer cFree(cHandle)
	copy(cDataToSlice[byte](unsafe.Pointer(&cHandle.data[0]), IPCHandleSize), handle[:])
	ptr := cMalloc[unsafe.Pointer]()
	defer cFree(ptr)
	err := toError("zeMemOpenIpcHandle",
		C.call_zeMemOpenIpcHandle(ctx.api(), ctx.c, device.c, cHandle, C.ze_ipc_memory_flags_t(flags), ptr))
	if err != nil {
		return nil, err
	}
	return *ptr, nil
}

// CloseIPCHandle calls zeMemCloseIpcHandle on a pointer returned by OpenIPCHandle.
func (ctx *Context) CloseIPCHandle(ptr unsafe.Pointer) error {
	if err := ctx.checkValid(); err != nil {
		return err
	}
	return toError("zeMemCloseIpcHandle", C.call_zeMemCloseIpcHandle(ctx.api(), ctx.c, ptr))
}
