//go:build linux && cgo

package levelzero

import (
	"github.com/gomlx/zeipc/backends"
	"github.com/gomlx/zeipc/ze"
	"github.com/pkg/errors"
)

// commandQueueGroupOrdinal is the command queue group used for lists and queues: the first one, which
// supports copies on every Level Zero device.
const commandQueueGroupOrdinal = 0

type commandList struct {
	l *ze.CommandList
}

// NewCommandList implements backends.Context.
func (c *Context) NewCommandList(device int) (backends.CommandList, error) {
	d, err := c.backend.device(device)
	if err != nil {
		return nil, err
	}
	l, err := c.ctx.NewCommandList(d, commandQueueGroupOrdinal)
	if err != nil {
		return nil, err
	}
	return &commandList{l: l}, nil
}

func (l *commandList) AppendMemoryCopy(dst, src backends.Buffer, size int) error {
	if size < 0 || size > dst.Size() || size > src.Size() {
		return errors.Errorf("invalid copy of %d bytes from buffer of %d bytes to buffer of %d bytes",
			size, src.Size(), dst.Size())
	}
	dstPtr, err := bufferPointer(dst)
	if err != nil {
		return err
	}
	srcPtr, err := bufferPointer(src)
	if err != nil {
		return err
	}
	return l.l.AppendMemoryCopy(dstPtr, srcPtr, uintptr(size))
}

func (l *commandList) Close() error {
	return l.l.Close()
}

func (l *commandList) Destroy() error {
	return l.l.Destroy()
}

type commandQueue struct {
	q *ze.CommandQueue
}

// NewCommandQueue implements backends.Context.
func (c *Context) NewCommandQueue(device int) (backends.CommandQueue, error) {
	d, err := c.backend.device(device)
	if err != nil {
		return nil, err
	}
	q, err := c.ctx.NewCommandQueue(d, commandQueueGroupOrdinal, ze.CommandQueueModeDefault, ze.CommandQueuePriorityNormal)
	if err != nil {
		return nil, err
	}
	return &commandQueue{q: q}, nil
}

func (q *commandQueue) ExecuteCommandLists(lists ...backends.CommandList) error {
	zeLists := make([]*ze.CommandList, 0, len(lists))
	for _, list := range lists {
		l, ok := list.(*commandList)
		if !ok {
			return errors.Errorf("ExecuteCommandLists: %T is not a Level Zero command list", list)
		}
		zeLists = append(zeLists, l.l)
	}
	return q.q.ExecuteCommandLists(zeLists...)
}

func (q *commandQueue) Synchronize() error {
	return q.q.Synchronize(ze.InfiniteTimeout)
}

func (q *commandQueue) Destroy() error {
	return q.q.Destroy()
}
