//go:build linux

package scenario

import (
	"context"

	"github.com/gomlx/zeipc/ipcchannel"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// RunReceiver runs the receiver role: it receives the IPC handle on the inherited channel (cfg.ChannelFD),
// opens it on its own device, copies the shared memory to a zeroed host buffer and validates the data pattern.
//
// A mismatch is returned as a *PatternMismatchError (wrapped).
func RunReceiver(_ context.Context, cfg Config) (err error) {
	if err = cfg.Validate(); err != nil {
		return err
	}
	r := &releaser{role: RoleReceiver}
	defer func() { err = r.release(err) }()

	conn, err := ipcchannel.FromFD(cfg.ChannelFD)
	if err != nil {
		return errors.WithMessage(err, "receiver: opening channel")
	}
	r.add("channel", conn.Close)
	s, err := newSetup(RoleReceiver, cfg, r)
	if err != nil {
		return err
	}

	msg, err := conn.ReceiveHandle()
	if err != nil {
		return errors.WithMessage(err, "receiver")
	}
	fd := msg.Handle.FD()
	r.add("received descriptor", func() error { return errors.Wrap(unix.Close(fd), "close") })
	klog.V(1).Infof("receiver: received IPC handle for %d bytes of %s memory from pid %d", msg.Size, msg.Mode, msg.SenderPID)
	if msg.Mode != string(cfg.AllocMode) {
		klog.Warningf("receiver: expected %s memory, sender exported %s memory", cfg.AllocMode, msg.Mode)
	}
	if msg.Size < cfg.BufferSize {
		return errors.Errorf("receiver: shared memory has %d bytes, %d needed", msg.Size, cfg.BufferSize)
	}

	mem, err := s.ctx.OpenIPCHandle(s.sel.Device.Index, msg.Handle)
	if err != nil {
		return errors.WithMessage(err, "receiver: opening IPC handle")
	}
	r.add("IPC memory", func() error { return s.ctx.CloseIPCHandle(mem) })
	host, err := s.ctx.AllocHost(cfg.BufferSize)
	if err != nil {
		return errors.WithMessage(err, "receiver: allocating host buffer")
	}
	r.add("host buffer", host.Free)
	clear(host.Bytes())

	if err = s.copyAndWait(host, mem, cfg.BufferSize); err != nil {
		return err
	}
	if err = ValidateDataPattern(host.Bytes(), cfg.PatternSeed); err != nil {
		return errors.WithMessage(err, "receiver: memory verification failed")
	}
	klog.V(1).Infof("receiver: verified %d bytes on device %s", cfg.BufferSize, s.sel.Device)
	return nil
}
