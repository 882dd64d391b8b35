//go:build linux

package ipcchannel

import (
	"io"
	"os"
	"testing"

	"github.com/gomlx/zeipc/backends"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMessageEncoding(t *testing.T) {
	var handle backends.IPCHandle
	for ii := range handle {
		handle[ii] = byte(255 - ii)
	}
	msg := Message{Handle: handle, Size: 4096, SenderPID: 1234, Mode: "reserved"}
	decoded, err := unmarshalMessage(msg.marshal())
	require.NoError(t, err)
	require.Equal(t, msg, decoded)

	_, err = unmarshalMessage(nil)
	require.ErrorContains(t, err, "no IPC handle")
	_, err = unmarshalMessage([]byte{0x0a, 0x02, 1, 2})
	require.ErrorContains(t, err, "IPC handle has 2 bytes")
	_, err = unmarshalMessage([]byte{0x0a, 0x40})
	require.Error(t, err)
}

func TestSendReceive(t *testing.T) {
	conn, peerFile, err := Pair()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	peer := must.M1(NewConn(peerFile))
	defer func() { _ = peer.Close() }()

	// A memfd with known contents plays the exported memory.
	fd := must.M1(unix.MemfdCreate("ipcchannel-test", unix.MFD_CLOEXEC))
	defer func() { _ = unix.Close(fd) }()
	_ = must.M1(unix.Write(fd, []byte("level zero")))

	var handle backends.IPCHandle
	handle[10] = 0x77
	handle = handle.WithFD(fd)
	require.NoError(t, conn.SendHandle(Message{Handle: handle, Size: 10, SenderPID: os.Getpid(), Mode: "device"}))

	msg, err := peer.ReceiveHandle()
	require.NoError(t, err)
	received := msg.Handle.FD()
	defer func() { _ = unix.Close(received) }()
	require.NotEqual(t, fd, received, "descriptor must have been replaced by the received one")
	require.Equal(t, handle[4:], msg.Handle[4:])
	require.Equal(t, 10, msg.Size)
	require.Equal(t, os.Getpid(), msg.SenderPID)
	require.Equal(t, "device", msg.Mode)

	// Received descriptor refers to the same file.
	buf := make([]byte, 10)
	n := must.M1(unix.Pread(received, buf, 0))
	require.Equal(t, "level zero", string(buf[:n]))
}

func TestReceiveEOF(t *testing.T) {
	conn, peerFile, err := Pair()
	require.NoError(t, err)
	peer := must.M1(NewConn(peerFile))
	defer func() { _ = peer.Close() }()
	require.NoError(t, conn.Close())
	_, err = peer.ReceiveHandle()
	require.Error(t, err)
	require.True(t, errors.Is(err, io.EOF), "expected EOF, got %v", err)
}

func TestSendInvalidDescriptor(t *testing.T) {
	conn, peerFile, err := Pair()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	defer func() { _ = peerFile.Close() }()
	var handle backends.IPCHandle
	require.Error(t, conn.SendHandle(Message{Handle: handle.WithFD(-1)}))
}

func TestFromFD(t *testing.T) {
	_, err := FromFD(-1)
	require.Error(t, err)
}
