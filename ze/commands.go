//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"math"
	"runtime"
	"unsafe"
)

// CommandQueueMode is ze_command_queue_mode_t.
type CommandQueueMode uint32

const (
	CommandQueueModeDefault      CommandQueueMode = 0
	CommandQueueModeSynchronous  CommandQueueMode = 1
	CommandQueueModeAsynchronous CommandQueueMode = 2
)

// CommandQueuePriority is ze_command_queue_priority_t.
type CommandQueuePriority uint32

const (
	CommandQueuePriorityNormal CommandQueuePriority = 0
	CommandQueuePriorityLow    CommandQueuePriority = 1
	CommandQueuePriorityHigh   CommandQueuePriority = 2
)

// InfiniteTimeout makes CommandQueue.Synchronize wait for as long as it takes (UINT64_MAX).
const InfiniteTimeout = uint64(math.MaxUint64)

// CommandList is a ze_command_list_handle_t.
type CommandList struct {
	ctx *Context
	c   C.ze_command_list_handle_t
}

// NewCommandList calls zeCommandListCreate on the given device, for the command queue group ordinal given.
func (ctx *Context) NewCommandList(device *Device, ordinal uint32) (*CommandList, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	desc := cMalloc[C.ze_command_list_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_COMMAND_LIST_DESC
	desc.commandQueueGroupOrdinal = C.uint32_t(ordinal)
	cList := cMalloc[C.ze_command_list_handle_t]()
	defer cFree(cList)
	if err := toError("zeCommandListCreate", C.call_zeCommandListCreate(ctx.api(), ctx.c, device.c, desc, cList)); err != nil {
		return nil, err
	}
	return &CommandList{ctx: ctx, c: *cList}, nil
}

// AppendMemoryCopy calls zeCommandListAppendMemoryCopy, without signal or wait events.
// Both pointers must be driver allocated (device, host, shared, or opened from an IPC handle).
func (l *CommandList) AppendMemoryCopy(dst, src unsafe.Pointer, size uintptr) error {
	return toError("zeCommandListAppendMemoryCopy",
		C.call_zeCommandListAppendMemoryCopy(l.ctx.api(), l.c, dst, src, C.size_t(size)))
}

// Close calls zeCommandListClose: the list can be executed afterwards, but nothing can be appended.
func (l *CommandList) Close() error {
	return toError("zeCommandListClose", C.call_zeCommandListClose(l.ctx.api(), l.c))
}

// Destroy calls zeCommandListDestroy. Calling it again is a no-op.
func (l *CommandList) Destroy() error {
	if l == nil || l.c == nil {
		return nil
	}
	defer runtime.KeepAlive(l)
	err := toError("zeCommandListDestroy", C.call_zeCommandListDestroy(l.ctx.api(), l.c))
	l.c = nil
	return err
}

// CommandQueue is a ze_command_queue_handle_t.
type CommandQueue struct {
	ctx *Context
	c   C.ze_command_queue_handle_t
}

// NewCommandQueue calls zeCommandQueueCreate on the given device.
func (ctx *Context) NewCommandQueue(device *Device, ordinal uint32, mode CommandQueueMode, priority CommandQueuePriority) (*CommandQueue, error) {
	if err := ctx.checkValid(); err != nil {
		return nil, err
	}
	desc := cMalloc[C.ze_command_queue_desc_t]()
	defer cFree(desc)
	desc.stype = C.ZE_STRUCTURE_TYPE_COMMAND_QUEUE_DESC
	desc.ordinal = C.uint32_t(ordinal)
	desc.index = 0
	desc.mode = C.ze_command_queue_mode_t(mode)
	desc.priority = C.ze_command_queue_priority_t(priority)
	cQueue := cMalloc[C.ze_command_queue_handle_t]()
	defer cFree(cQueue)
	if err := toError("zeCommandQueueCreate", C.call_zeCommandQueueCreate(ctx.api(), ctx.c, device.c, desc, cQueue)); err != nil {
		return nil, err
	}
	return &CommandQueue{ctx: ctx, c: *cQueue}, nil
}

// ExecuteCommandLists calls zeCommandQueueExecuteCommandLists with no fence. The lists must be closed.
func (q *CommandQueue) ExecuteCommandLists(lists ...*CommandList) error {
	cLists := cMallocArray[C.ze_command_list_handle_t](len(lists))
	defer cFree(cLists)
	slots := cDataToSlice[C.ze_command_list_handle_t](unsafe.Pointer(cLists), len(lists))
	for ii, l := range lists {
		slots[ii] = l.c
	}
	return toError("zeCommandQueueExecuteCommandLists",
		C.call_zeCommandQueueExecuteCommandLists(q.ctx.api(), q.c, C.uint32_t(len(lists)), cLists))
}

// Synchronize calls zeCommandQueueSynchronize, blocking until all submitted work is done or the
// timeout (in nanoseconds) expires. Use InfiniteTimeout to wait without limit.
func (q *CommandQueue) Synchronize(timeout uint64) error {
	return toError("zeCommandQueueSynchronize", C.call_zeCommandQueueSynchronize(q.ctx.api(), q.c, C.uint64_t(timeout)))
}

// Destroy calls zeCommandQueueDestroy. Calling it again is a no-op.
func (q *CommandQueue) Destroy() error {
	if q == nil || q.c == nil {
		return nil
	}
	defer runtime.KeepAlive(q)
	err := toError("zeCommandQueueDestroy", C.call_zeCommandQueueDestroy(q.ctx.api(), q.c))
	q.c = nil
	return err
}
