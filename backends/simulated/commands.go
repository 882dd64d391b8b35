//go:build linux

package simulated

import (
	"sync"

	"github.com/gomlx/zeipc/backends"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type copyOp struct {
	dst, src backends.Buffer
	size     int
}

// CommandList implements backends.CommandList: it records copies, executed later by a CommandQueue.
type CommandList struct {
	ctx    *Context
	device int
	ops    []copyOp
	closed bool
}

var _ backends.CommandList = (*CommandList)(nil)

// NewCommandList implements backends.Context.
func (c *Context) NewCommandList(device int) (backends.CommandList, error) {
	if err := c.backend.checkDevice(device); err != nil {
		return nil, err
	}
	l := &CommandList{ctx: c, device: device}
	if err := c.track(l, "command list on device #%d", device); err != nil {
		return nil, err
	}
	return l, nil
}

// AppendMemoryCopy implements backends.CommandList.
func (l *CommandList) AppendMemoryCopy(dst, src backends.Buffer, size int) error {
	if err := l.ctx.backend.maybeFail(OpCopy); err != nil {
		return err
	}
	if l.closed {
		return errors.New("AppendMemoryCopy on a closed command list")
	}
	if size < 0 || size > dst.Size() || size > src.Size() {
		return errors.Errorf("invalid copy of %d bytes from buffer of %d bytes to buffer of %d bytes",
			size, src.Size(), dst.Size())
	}
	l.ops = append(l.ops, copyOp{dst: dst, src: src, size: size})
	return nil
}

// Close implements backends.CommandList.
func (l *CommandList) Close() error {
	if l.closed {
		return errors.New("command list already closed")
	}
	l.closed = true
	return nil
}

// Destroy implements backends.CommandList.
func (l *CommandList) Destroy() error {
	l.ops = nil
	return l.ctx.untrack(l)
}

// CommandQueue implements backends.CommandQueue: each execution runs asynchronously in a goroutine.
type CommandQueue struct {
	ctx    *Context
	device int

	mu      sync.Mutex
	pending *errgroup.Group
}

var _ backends.CommandQueue = (*CommandQueue)(nil)

// NewCommandQueue implements backends.Context.
func (c *Context) NewCommandQueue(device int) (backends.CommandQueue, error) {
	if err := c.backend.checkDevice(device); err != nil {
		return nil, err
	}
	q := &CommandQueue{ctx: c, device: device, pending: &errgroup.Group{}}
	if err := c.track(q, "command queue on device #%d", device); err != nil {
		return nil, err
	}
	return q, nil
}

// ExecuteCommandLists implements backends.CommandQueue.
func (q *CommandQueue) ExecuteCommandLists(lists ...backends.CommandList) error {
	var ops []copyOp
	for _, list := range lists {
		l, ok := list.(*CommandList)
		if !ok {
			return errors.Errorf("ExecuteCommandLists: %T is not a simulated command list", list)
		}
		if !l.closed {
			return errors.New("ExecuteCommandLists: command list not closed")
		}
		ops = append(ops, l.ops...)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending.Go(func() error {
		for _, op := range ops {
			if err := executeCopy(op); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// Synchronize implements backends.CommandQueue. It returns the first error of the executions since the
// last synchronization.
func (q *CommandQueue) Synchronize() error {
	q.mu.Lock()
	pending := q.pending
	q.pending = &errgroup.Group{}
	q.mu.Unlock()
	return pending.Wait()
}

// Destroy implements backends.CommandQueue.
func (q *CommandQueue) Destroy() error {
	if err := q.Synchronize(); err != nil {
		return err
	}
	return q.ctx.untrack(q)
}

func bufferBytes(b backends.Buffer) ([]byte, error) {
	switch buf := b.(type) {
	case *deviceMemory:
		if buf.data == nil {
			return nil, errors.New("copy from/to released device memory")
		}
		return buf.data, nil
	case *hostMemory:
		if buf.data == nil {
			return nil, errors.New("copy from/to released host memory")
		}
		return buf.data, nil
	}
	return nil, errors.Errorf("%T is not simulated memory", b)
}

func executeCopy(op copyOp) error {
	dst, err := bufferBytes(op.dst)
	if err != nil {
		return err
	}
	src, err := bufferBytes(op.src)
	if err != nil {
		return err
	}
	copy(dst[:op.size], src[:op.size])
	if m, ok := op.src.(*deviceMemory); ok && m.corrupt && op.size > 0 {
		dst[op.size/2] ^= 0xff
	}
	return nil
}
