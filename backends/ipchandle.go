package backends

import (
	"encoding/binary"
	"encoding/hex"
)

// IPCHandleSize is the size of an IPC handle, ZE_MAX_IPC_HANDLE_SIZE.
const IPCHandleSize = 64

// IPCHandle is an opaque IPC memory handle, as returned by Context.GetIPCHandle.
//
// On Linux the driver stores a file descriptor of the exporting process in its first 4 bytes (native
// endianness). The descriptor is meaningless in any other process: it must be transferred with
// SCM_RIGHTS and replaced by the received one (see WithFD) before Context.OpenIPCHandle.
type IPCHandle [IPCHandleSize]byte

// FD returns the file descriptor stored in the handle.
func (h IPCHandle) FD() int {
	return int(int32(binary.NativeEndian.Uint32(h[:4])))
}

// WithFD returns a copy of the handle with the file descriptor replaced by fd.
func (h IPCHandle) WithFD(fd int) IPCHandle {
	binary.NativeEndian.PutUint32(h[:4], uint32(int32(fd)))
	return h
}

// String implements fmt.Stringer.
func (h IPCHandle) String() string {
	return hex.EncodeToString(h[:])
}
