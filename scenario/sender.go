//go:build linux

package scenario

import (
	"context"
	"os"
	"sync"

	"github.com/gomlx/zeipc/backends"
	"github.com/gomlx/zeipc/ipcchannel"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RunSender runs the sender role: it writes the data pattern to memory allocated on its device, exports it,
// starts the receiver process, sends it the IPC handle and waits for it to exit.
//
// A receiver exiting with a non-zero status is returned as a *ProcessError. It returns
// ErrNotEnoughDevices (wrapped) if the scenario can't run.
func RunSender(ctx context.Context, cfg Config) (err error) {
	if err = cfg.Validate(); err != nil {
		return err
	}
	r := &releaser{role: RoleSender}
	defer func() { err = r.release(err) }()

	s, err := newSetup(RoleSender, cfg, r)
	if err != nil {
		return err
	}
	mem, err := allocate(s, cfg.AllocMode, cfg.BufferSize)
	if err != nil {
		return errors.WithMessagef(err, "sender: allocating %d bytes of %s memory", cfg.BufferSize, cfg.AllocMode)
	}
	r.add("device memory", mem.Free)
	host, err := s.ctx.AllocHost(cfg.BufferSize)
	if err != nil {
		return errors.WithMessage(err, "sender: allocating host buffer")
	}
	r.add("host buffer", host.Free)

	WriteDataPattern(host.Bytes(), cfg.PatternSeed)
	if err = s.copyAndWait(mem, host, cfg.BufferSize); err != nil {
		return err
	}
	handle, err := s.ctx.GetIPCHandle(mem)
	if err != nil {
		return errors.WithMessage(err, "sender: exporting IPC handle")
	}

	conn, peer, err := ipcchannel.Pair()
	if err != nil {
		return errors.WithMessage(err, "sender: creating channel")
	}
	closeConn := sync.OnceValue(conn.Close)
	r.add("channel", closeConn)
	receiver, err := spawn(ctx, RoleReceiver, cfg, peer)
	if err2 := peer.Close(); err2 != nil {
		klog.Warningf("sender: closing receiver's end of the channel: %v", err2)
	}
	if err != nil {
		return err
	}

	msg := ipcchannel.Message{Handle: handle, Size: mem.Size(), SenderPID: os.Getpid(), Mode: string(cfg.AllocMode)}
	if err = conn.SendHandle(msg); err != nil {
		// Receiver sees EOF and fails.
		_ = closeConn()
		if err2 := wait(receiver, RoleReceiver, cfg.AllocMode); err2 != nil {
			klog.Errorf("sender: %v", err2)
		}
		return errors.WithMessage(err, "sender")
	}
	klog.V(1).Infof("sender: IPC handle sent to receiver (pid %d)", receiver.Process.Pid)
	if err = wait(receiver, RoleReceiver, cfg.AllocMode); err != nil {
		return errors.WithMessage(err, "receiver process failed memory verification")
	}
	klog.V(1).Infof("sender: receiver verified %d bytes on device %s", cfg.BufferSize, s.sel.Device)
	return nil
}

// allocate device memory on the selected device, using the allocation mode.
func allocate(s *setup, mode AllocMode, size int) (backends.Memory, error) {
	switch mode {
	case AllocDevice:
		return s.ctx.AllocDevice(s.sel.Device.Index, size)
	case AllocReserved:
		return s.ctx.ReserveAndMap(s.sel.Device.Index, size)
	}
	return nil, errors.Errorf("invalid allocation mode %q", mode)
}
