//go:build linux

package simulated

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/gomlx/zeipc/backends"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// ipcMagic marks handles exported by this backend, right after the file descriptor.
var ipcMagic = [4]byte{'z', 's', 'i', 'm'}

// Context implements backends.Context. It tracks every object created with it, and Destroy fails if any
// of them was not released.
type Context struct {
	backend *Backend

	mu        sync.Mutex
	live      map[any]string
	destroyed bool
}

var _ backends.Context = (*Context)(nil)

func (c *Context) track(obj any, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return errors.New("simulated context already destroyed")
	}
	c.live[obj] = fmt.Sprintf(format, args...)
	return nil
}

func (c *Context) untrack(obj any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.live[obj]; !found {
		return errors.Errorf("%T not owned by the context or already released", obj)
	}
	delete(c.live, obj)
	return nil
}

// Destroy implements backends.Context.
func (c *Context) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	if len(c.live) > 0 {
		leaks := make([]string, 0, len(c.live))
		for _, desc := range c.live {
			leaks = append(leaks, desc)
		}
		sort.Strings(leaks)
		return errors.Errorf("simulated context destroyed with %d live objects: %v", len(leaks), leaks)
	}
	return nil
}

// deviceMemory is a memfd mapped in the process.
type deviceMemory struct {
	ctx      *Context
	device   backends.DeviceInfo
	fd       int
	data     []byte
	imported bool
	corrupt  bool
}

func (m *deviceMemory) Size() int {
	return len(m.data)
}

// Free implements backends.Memory.
func (m *deviceMemory) Free() error {
	if m.imported {
		return errors.New("memory imported with OpenIPCHandle must be released with CloseIPCHandle")
	}
	if err := m.ctx.untrack(m); err != nil {
		return err
	}
	return m.release(true)
}

func (m *deviceMemory) release(closeFD bool) error {
	err := unix.Munmap(m.data)
	m.data = nil
	if closeFD {
		if err2 := unix.Close(m.fd); err == nil {
			err = err2
		}
	}
	return errors.Wrap(err, "releasing simulated device memory")
}

// hostMemory is an anonymous private mapping.
type hostMemory struct {
	ctx  *Context
	data []byte
}

func (h *hostMemory) Size() int {
	return len(h.data)
}

func (h *hostMemory) Bytes() []byte {
	return h.data
}

// Free implements backends.HostMemory.
func (h *hostMemory) Free() error {
	if err := h.ctx.untrack(h); err != nil {
		return err
	}
	err := unix.Munmap(h.data)
	h.data = nil
	return errors.Wrap(err, "releasing simulated host memory")
}

// AllocDevice implements backends.Context.
func (c *Context) AllocDevice(device, size int) (backends.Memory, error) {
	if err := c.backend.maybeFail(OpAlloc); err != nil {
		return nil, err
	}
	return c.newDeviceMemory(device, size, "device")
}

// ReserveAndMap implements backends.Context. The size is rounded up to PageSize.
func (c *Context) ReserveAndMap(device, size int) (backends.Memory, error) {
	if err := c.backend.maybeFail(OpReserve); err != nil {
		return nil, err
	}
	if size > 0 {
		size = (size + PageSize - 1) / PageSize * PageSize
	}
	return c.newDeviceMemory(device, size, "reserved")
}

func (c *Context) newDeviceMemory(device, size int, kind string) (*deviceMemory, error) {
	if err := c.backend.checkDevice(device); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid allocation size %d", size)
	}
	info := c.backend.devices[device]
	fd, err := unix.MemfdCreate(fmt.Sprintf("zeipc-sim-%s", info.UUID), unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "memfd_create")
	}
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "ftruncate")
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "mmap")
	}
	m := &deviceMemory{ctx: c, device: info, fd: fd, data: data}
	if err = c.track(m, "%s memory (%d bytes) on device %s", kind, size, info.UUID); err != nil {
		_ = m.release(true)
		return nil, err
	}
	klog.V(2).Infof("simulated: allocated %d bytes of %s memory on device %s, memfd %d", size, kind, info, fd)
	return m, nil
}

// AllocHost implements backends.Context.
func (c *Context) AllocHost(size int) (backends.HostMemory, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid allocation size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	h := &hostMemory{ctx: c, data: data}
	if err = c.track(h, "host memory (%d bytes)", size); err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return h, nil
}

// GetIPCHandle implements backends.Context. The handle holds the memfd descriptor, the magic and the size.
func (c *Context) GetIPCHandle(mem backends.Memory) (handle backends.IPCHandle, err error) {
	if err = c.backend.maybeFail(OpGetIPC); err != nil {
		return
	}
	m, ok := mem.(*deviceMemory)
	if !ok || m.data == nil {
		return handle, errors.Errorf("GetIPCHandle: %T is not live simulated device memory", mem)
	}
	handle = handle.WithFD(m.fd)
	copy(handle[4:8], ipcMagic[:])
	binary.NativeEndian.PutUint64(handle[8:16], uint64(len(m.data)))
	return handle, nil
}

// OpenIPCHandle implements backends.Context: it maps the memfd whose descriptor is in the handle.
// The descriptor is not owned by the returned memory.
func (c *Context) OpenIPCHandle(device int, handle backends.IPCHandle) (backends.Memory, error) {
	if err := c.backend.maybeFail(OpOpenIPC); err != nil {
		return nil, err
	}
	if err := c.backend.checkDevice(device); err != nil {
		return nil, err
	}
	if [4]byte(handle[4:8]) != ipcMagic {
		return nil, errors.Errorf("IPC handle %s was not exported by the simulated backend", handle)
	}
	size := int(binary.NativeEndian.Uint64(handle[8:16]))
	fd := handle.FD()
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, errors.Wrapf(err, "IPC handle descriptor %d", fd)
	}
	if stat.Size < int64(size) {
		return nil, errors.Errorf("IPC handle descriptor %d has %d bytes, handle says %d", fd, stat.Size, size)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap of imported memory")
	}
	m := &deviceMemory{ctx: c, device: c.backend.devices[device], fd: fd, data: data, imported: true,
		corrupt: c.backend.corrupt}
	if err = c.track(m, "imported memory (%d bytes) on device %s", size, m.device.UUID); err != nil {
		_ = m.release(false)
		return nil, err
	}
	return m, nil
}

// CloseIPCHandle implements backends.Context.
func (c *Context) CloseIPCHandle(mem backends.Memory) error {
	m, ok := mem.(*deviceMemory)
	if !ok || !m.imported {
		return errors.Errorf("CloseIPCHandle: %T is not memory imported with OpenIPCHandle", mem)
	}
	if err := c.untrack(m); err != nil {
		return err
	}
	return m.release(false)
}
