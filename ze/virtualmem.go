//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"runtime"
	"unsafe"
)

// MemoryAccessAttribute is ze_memory_access_attribute_t.
type MemoryAccessAttribute uint32

const (
	MemoryAccessAttributeNone      MemoryAccessAttribute = 0
	MemoryAccessAttributeReadWrite MemoryAccessAttribute = 1
	MemoryAccessAttributeReadOnly  MemoryAccessAttribute = 2
)

// QueryPageSize calls zeVirtualMemQueryPageSize: reservations and physical memory for an allocation
// of the given size on device must be multiples of the returned page size.
func (ctx *Context) QueryPageSize(device *Device, size uintptr) (uintptr, error) {
	if err := ctx.checkValid(); err != nil {
		return 0, err
	}
	pageSize := cMalloc[C.size_t]()
	defer cFree(pageSize)
	err := toError("zeVirtualMemQueryPageSize",
		C.call_zeVirtualMemQueryPageSize(ctx.api(), ctx.c, device.c, C.size_t(size), pageSize))
	if err != nil {
		return 0, err
	}
	return uintptr(*pageSize), nil
}

// ReserveVirtual calls zeVirtualMemReserve, letting the driver choose the start address.
func (ctx *Context) ReserveVirtual(size uintptr) (unsafe.Pointer, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	ptr := cMalloc[unsafe.Pointer]()
	defer cFree(ptr)
	if err := toError("zeVirtualMemReserve", C.call_zeVirtualMemReserve(ctx.api(), ctx.c, C.size_t(size), ptr)); err != nil {
		return nil, err
	}
	return *ptr, nil
}

// FreeVirtual calls zeVirtualMemFree on a range reserved with ReserveVirtual.
func (ctx *Context) FreeVirtual(ptr unsafe.Pointer, size uintptr) error {
	return toError("zeVirtualMemFree", C.call_zeVirtualMemFree(ctx.api(), ctx.c, ptr, C.size_t(size)))
}

// MapVirtual calls zeVirtualMemMap, backing [ptr, ptr+size) with physical memory starting at offset.
func (ctx *Context) MapVirtual(ptr unsafe.Pointer, size uintptr, physical *PhysicalMemory, offset uintptr, access MemoryAccessAttribute) error {
	return toError("zeVirtualMemMap", C.call_zeVirtualMemMap(ctx.api(), ctx.c, ptr, C.size_t(size), physical.c,
		C.size_t(offset), C.ze_memory_access_attribute_t(access)))
}

// UnmapVirtual calls zeVirtualMemUnmap.
func (ctx *Context) UnmapVirtual(ptr unsafe.Pointer, size uintptr) error {
	return toError("zeVirtualMemUnmap", C.call_zeVirtualMemUnmap(ctx.api(), ctx.c, ptr, C.size_t(size)))
}

// PhysicalMemory is a ze_physical_mem_handle_t.
type PhysicalMemory struct {
	ctx  *Context
	c    C.ze_physical_mem_handle_t
	size uintptr
}

// NewPhysicalMemory calls zePhysicalMemCreate. Size must be a multiple of the page size, see QueryPageSize.
func (ctx *Context) NewPhysicalMemory(device *Device, size uintptr) (*PhysicalMemory, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	desc := cMalloc[C.ze_physical_mem_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_PHYSICAL_MEM_DESC
	desc.size = C.size_t(size)
	cPhysical := cMalloc[C.ze_physical_mem_handle_t]()
	defer cFree(cPhysical)
	err := toError("zePhysicalMemCreate", C.call_zePhysicalMemCreate(ctx.api(), ctx.c, device.c, desc, cPhysical))
	if err != nil {
		return nil, err
	}
	return &PhysicalMemory{ctx: ctx, c: *cPhysical, size: size}, nil
}

// Size returns the size of the physical memory, in bytes.
func (p *PhysicalMemory) Size() uintptr {
	return p.size
}

// Destroy calls zePhysicalMemDestroy. Calling it again is a no-op.
func (p *PhysicalMemory) Destroy() error {
	if p == nil || p.c == nil {
		return nil
	}
	defer runtime.KeepAlive(p)
	err := toError("zePhysicalMemDestroy", C.call_zePhysicalMemDestroy(p.ctx.api(), p.ctx.c, p.c))
	p.c = nil
	return err
}
