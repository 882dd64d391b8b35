//go:build linux && cgo

package levelzero

import (
	"unsafe"

	"github.com/gomlx/zeipc/backends"
	"github.com/gomlx/zeipc/ze"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context implements backends.Context with a ze.Context.
type Context struct {
	backend *Backend
	ctx     *ze.Context
}

var _ backends.Context = (*Context)(nil)

type memoryKind int

const (
	kindDevice memoryKind = iota
	kindReserved
	kindImported
)

// deviceMemory is a device pointer plus what is needed to release it.
type deviceMemory struct {
	ctx      *Context
	ptr      unsafe.Pointer
	size     int
	kind     memoryKind
	physical *ze.PhysicalMemory // Only for kindReserved.
}

func (m *deviceMemory) Size() int {
	return m.size
}

// Free implements backends.Memory.
func (m *deviceMemory) Free() error {
	if m.ptr == nil {
		return errors.New("device memory already released")
	}
	var err error
	switch m.kind {
	case kindDevice:
		err = m.ctx.ctx.Free(m.ptr)
	case kindReserved:
		err = freeReserved(m.ctx.ctx, m.ptr, uintptr(m.size), m.physical)
	case kindImported:
		return errors.New("memory imported with OpenIPCHandle must be released with CloseIPCHandle")
	}
	m.ptr = nil
	return err
}

// freeReserved unmaps the range, and releases the physical memory and the reservation. It returns the first error.
func freeReserved(ctx *ze.Context, ptr unsafe.Pointer, size uintptr, physical *ze.PhysicalMemory) error {
	err := ctx.UnmapVirtual(ptr, size)
	if err2 := physical.Destroy(); err == nil {
		err = err2
	}
	if err2 := ctx.FreeVirtual(ptr, size); err == nil {
		err = err2
	}
	return err
}

type hostMemory struct {
	ctx  *Context
	ptr  unsafe.Pointer
	size int
}

func (h *hostMemory) Size() int {
	return h.size
}

func (h *hostMemory) Bytes() []byte {
	return ze.HostBytes(h.ptr, uintptr(h.size))
}

// Free implements backends.HostMemory.
func (h *hostMemory) Free() error {
	if h.ptr == nil {
		return errors.New("host memory already released")
	}
	err := h.ctx.ctx.Free(h.ptr)
	h.ptr = nil
	return err
}

// AllocDevice implements backends.Context.
func (c *Context) AllocDevice(device, size int) (backends.Memory, error) {
	d, err := c.backend.device(device)
	if err != nil {
		return nil, err
	}
	ptr, err := c.ctx.AllocDevice(d, uintptr(size), 1, 0)
	if err != nil {
		return nil, err
	}
	return &deviceMemory{ctx: c, ptr: ptr, size: size, kind: kindDevice}, nil
}

// ReserveAndMap implements backends.Context: it queries the page size, rounds size up to it, reserves the
// virtual range, creates the physical memory and maps it read-write.
func (c *Context) ReserveAndMap(device, size int) (backends.Memory, error) {
	d, err := c.backend.device(device)
	if err != nil {
		return nil, err
	}
	pageSize, err := c.ctx.QueryPageSize(d, uintptr(size))
	if err != nil {
		return nil, err
	}
	rounded := uintptr(size)
	if pageSize > 0 {
		rounded = (rounded + pageSize - 1) / pageSize * pageSize
	}
	ptr, err := c.ctx.ReserveVirtual(rounded)
	if err != nil {
		return nil, err
	}
	physical, err := c.ctx.NewPhysicalMemory(d, rounded)
	if err != nil {
		if err2 := c.ctx.FreeVirtual(ptr, rounded); err2 != nil {
			klog.Errorf("Failed to free virtual range after error: %v", err2)
		}
		return nil, err
	}
	if err = c.ctx.MapVirtual(ptr, rounded, physical, 0, ze.MemoryAccessAttributeReadWrite); err != nil {
		if err2 := physical.Destroy(); err2 != nil {
			klog.Errorf("Failed to destroy physical memory after error: %v", err2)
		}
		if err2 := c.ctx.FreeVirtual(ptr, rounded); err2 != nil {
			klog.Errorf("Failed to free virtual range after error: %v", err2)
		}
		return nil, err
	}
	klog.V(2).Infof("reserved and mapped %d bytes (page size %d) at %p", rounded, pageSize, ptr)
	return &deviceMemory{ctx: c, ptr: ptr, size: int(rounded), kind: kindReserved, physical: physical}, nil
}

// AllocHost implements backends.Context.
func (c *Context) AllocHost(size int) (backends.HostMemory, error) {
	ptr, err := c.ctx.AllocHost(uintptr(size), 1, 0)
	if err != nil {
		return nil, err
	}
	return &hostMemory{ctx: c, ptr: ptr, size: size}, nil
}

// GetIPCHandle implements backends.Context.
func (c *Context) GetIPCHandle(mem backends.Memory) (backends.IPCHandle, error) {
	m, ok := mem.(*deviceMemory)
	if !ok || m.ptr == nil {
		return backends.IPCHandle{}, errors.Errorf("GetIPCHandle: %T is not live Level Zero device memory", mem)
	}
	handle, err := c.ctx.GetIPCHandle(m.ptr)
	if err != nil {
		return backends.IPCHandle{}, err
	}
	return backends.IPCHandle(handle), nil
}

// OpenIPCHandle implements backends.Context.
func (c *Context) OpenIPCHandle(device int, handle backends.IPCHandle) (backends.Memory, error) {
	d, err := c.backend.device(device)
	if err != nil {
		return nil, err
	}
	ptr, err := c.ctx.OpenIPCHandle(d, ze.IPCMemHandle(handle), 0)
	if err != nil {
		return nil, err
	}
	// Level Zero doesn't report the size of imported memory: copies are bounded by the caller.
	return &deviceMemory{ctx: c, ptr: ptr, size: int(^uint(0) >> 1), kind: kindImported}, nil
}

// CloseIPCHandle implements backends.Context.
func (c *Context) CloseIPCHandle(mem backends.Memory) error {
	m, ok := mem.(*deviceMemory)
	if !ok || m.kind != kindImported || m.ptr == nil {
		return errors.Errorf("CloseIPCHandle: %T is not memory imported with OpenIPCHandle", mem)
	}
	err := c.ctx.CloseIPCHandle(m.ptr)
	m.ptr = nil
	return err
}

// Destroy implements backends.Context.
func (c *Context) Destroy() error {
	return c.ctx.Destroy()
}

func bufferPointer(b backends.Buffer) (unsafe.Pointer, error) {
	switch buf := b.(type) {
	case *deviceMemory:
		if buf.ptr != nil {
			return buf.ptr, nil
		}
	case *hostMemory:
		if buf.ptr != nil {
			return buf.ptr, nil
		}
	default:
		return nil, errors.Errorf("%T is not Level Zero memory", b)
	}
	return nil, errors.New("copy from/to released memory")
}
