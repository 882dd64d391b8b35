//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DeviceMemAllocFlags is ze_device_mem_alloc_flags_t.
type DeviceMemAllocFlags uint32

// HostMemAllocFlags is ze_host_mem_alloc_flags_t.
type HostMemAllocFlags uint32

// AllocDevice calls zeMemAllocDevice: it allocates size bytes of device local memory on device.
// The pointer returned is only meaningful to the driver: it must not be dereferenced by the host.
func (ctx *Context) AllocDevice(device *Device, size, alignment uintptr, flags DeviceMemAllocFlags) (unsafe.Pointer, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	desc := cMalloc[C.ze_device_mem_alloc_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_DEVICE_MEM_ALLOC_DESC
	desc.flags = C.ze_device_mem_alloc_flags_t(flags)
	desc.ordinal = 0
	ptr := cMalloc[unsafe.Pointer]()
	defer cFree(ptr)
	err := toError("zeMemAllocDevice",
		C.call_zeMemAllocDevice(ctx.api(), ctx.c, desc, C.size_t(size), C.size_t(alignment), device.c, ptr))
	if err != nil {
		return nil, errors.WithMessagef(err, "allocating %d bytes of device memory", size)
	}
	klog.V(2).Infof("zeMemAllocDevice: %d bytes at %p", size, *ptr)
	return *ptr, nil
}

// AllocHost calls zeMemAllocHost. Host memory is accessible by the host and by every device of the context.
// See HostBytes to access it from Go.
func (ctx *Context) AllocHost(size, alignment uintptr, flags HostMemAllocFlags) (unsafe.Pointer, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	desc := cMalloc[C.ze_host_mem_alloc_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_HOST_MEM_ALLOC_DESC
	desc.flags = C.ze_host_mem_alloc_flags_t(flags)
	ptr := cMalloc[unsafe.Pointer]()
	defer cFree(ptr)
	err := toError("zeMemAllocHost",
		C.call_zeMemAllocHost(ctx.api(), ctx.c, desc, C.size_t(size), C.size_t(alignment), ptr))
	if err != nil {
		return nil, errors.WithMessagef(err, "allocating %d bytes of host memory", size)
	}
	return *ptr, nil
}

// Free calls zeMemFree on memory allocated with AllocDevice or AllocHost.
func (ctx *Context) Free(ptr unsafe.Pointer) error {
	if err := ctx.checkValid(); err != nil {
		return err
	}
	return toError("zeMemFree", C.call_zeMemFree(ctx.api(), ctx.c, ptr))
}

// HostBytes returns a Go view of size bytes of host memory allocated with AllocHost.
// The slice is only valid until the memory is freed.
func HostBytes(ptr unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}
