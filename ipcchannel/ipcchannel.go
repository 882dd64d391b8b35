//go:build linux

// Package ipcchannel transfers IPC memory handles between processes over a connected Unix socket pair.
//
// A Level Zero IPC handle carries a file descriptor that is only valid in the exporting process. Each
// message is sent in one sendmsg call, with the descriptor as SCM_RIGHTS ancillary data, and the receiving
// side replaces the descriptor in the handle bytes with the one it received.
//
// The sockets are SOCK_SEQPACKET, so message boundaries are preserved and a closed peer reads as EOF.
package ipcchannel

import (
	"io"
	"net"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// maxMessageSize is larger than any encoded Message.
const maxMessageSize = 1024

// Conn is one end of the channel.
type Conn struct {
	conn *net.UnixConn
}

// Pair creates a connected socket pair. The returned Conn stays in this process, and the returned file is
// meant to be inherited by the child process (e.g. with exec.Cmd.ExtraFiles), which then calls NewConn.
// The caller should close the file once the child started.
func Pair() (*Conn, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "socketpair")
	}
	local := os.NewFile(uintptr(fds[0]), "zeipc-channel")
	remote := os.NewFile(uintptr(fds[1]), "zeipc-channel-peer")
	conn, err := NewConn(local)
	if err != nil {
		_ = remote.Close()
		return nil, nil, err
	}
	return conn, remote, nil
}

// NewConn creates a Conn from an inherited end of the socket pair. It takes ownership of f.
func NewConn(f *os.File) (*Conn, error) {
	defer func() { _ = f.Close() }()
	c, err := net.FileConn(f)
	if err != nil {
		return nil, errors.Wrapf(err, "channel file %q (descriptor %d)", f.Name(), f.Fd())
	}
	unixConn, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, errors.Errorf("channel descriptor %d is a %T, not a Unix socket", f.Fd(), c)
	}
	return &Conn{conn: unixConn}, nil
}

// FromFD creates a Conn from an inherited descriptor number, e.g. 3 for the first of exec.Cmd.ExtraFiles.
func FromFD(fd int) (*Conn, error) {
	if fd < 0 {
		return nil, errors.Errorf("invalid channel descriptor %d", fd)
	}
	return NewConn(os.NewFile(uintptr(fd), "zeipc-channel"))
}

// SendHandle sends msg, with the descriptor of msg.Handle as SCM_RIGHTS.
func (c *Conn) SendHandle(msg Message) error {
	fd := msg.Handle.FD()
	if fd < 0 {
		return errors.Errorf("IPC handle has invalid descriptor %d", fd)
	}
	buf := msg.marshal()
	n, oobn, err := c.conn.WriteMsgUnix(buf, unix.UnixRights(fd), nil)
	if err != nil {
		return errors.Wrap(err, "sending IPC handle")
	}
	if n != len(buf) || oobn == 0 {
		return errors.Errorf("short send of IPC handle: %d of %d bytes, %d ancillary bytes", n, len(buf), oobn)
	}
	klog.V(2).Infof("sent IPC handle (descriptor %d, %d bytes) to peer", fd, n)
	return nil
}

// ReceiveHandle blocks until a message arrives. The descriptor in the returned Message.Handle is the one
// received, valid in this process, and owned by the caller.
//
// It returns an error wrapping io.EOF if the peer closed the channel before sending.
func (c *Conn) ReceiveHandle() (Message, error) {
	buf := make([]byte, maxMessageSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, flags, _, err := c.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return Message{}, errors.Wrap(err, "receiving IPC handle")
	}
	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return Message{}, err
	}
	closeAll := func() {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
	}
	if n == 0 && len(fds) == 0 {
		return Message{}, errors.Wrap(io.EOF, "channel closed before an IPC handle was received")
	}
	if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		closeAll()
		return Message{}, errors.Errorf("truncated IPC handle message (flags 0x%x)", flags)
	}
	if len(fds) != 1 {
		closeAll()
		return Message{}, errors.Errorf("expected 1 descriptor with the IPC handle, got %d", len(fds))
	}
	msg, err := unmarshalMessage(buf[:n])
	if err != nil {
		closeAll()
		return Message{}, err
	}
	msg.Handle = msg.Handle.WithFD(fds[0])
	klog.V(2).Infof("received IPC handle from pid %d (descriptor %d)", msg.SenderPID, fds[0])
	return msg, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, errors.Wrap(err, "parsing ancillary data")
	}
	var fds []int
	for ii := range cmsgs {
		rights, err := unix.ParseUnixRights(&cmsgs[ii])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

// Close the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
