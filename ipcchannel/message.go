//go:build linux

package ipcchannel

import (
	"github.com/gomlx/zeipc/backends"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is what the sender transmits to the receiver.
type Message struct {
	// Handle exported by the sender. When received, its descriptor is the one valid in the receiver.
	Handle backends.IPCHandle

	// Size of the exported allocation in bytes.
	Size int

	// SenderPID is the process id of the sender, for logging.
	SenderPID int

	// Mode is the allocation mode of the exported memory, e.g. "device" or "reserved".
	Mode string
}

// Field numbers of the wire format.
const (
	fieldHandle    protowire.Number = 1
	fieldSize      protowire.Number = 2
	fieldSenderPID protowire.Number = 3
	fieldMode      protowire.Number = 4
)

func (m Message) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldHandle, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Handle[:])
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Size))
	b = protowire.AppendTag(b, fieldSenderPID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SenderPID))
	if m.Mode != "" {
		b = protowire.AppendTag(b, fieldMode, protowire.BytesType)
		b = protowire.AppendString(b, m.Mode)
	}
	return b
}

func unmarshalMessage(b []byte) (Message, error) {
	var m Message
	var haveHandle bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, errors.Wrap(protowire.ParseError(n), "decoding IPC handle message")
		}
		b = b[n:]
		switch {
		case num == fieldHandle && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "decoding IPC handle")
			}
			if len(v) != backends.IPCHandleSize {
				return m, errors.Errorf("IPC handle has %d bytes, expected %d", len(v), backends.IPCHandleSize)
			}
			copy(m.Handle[:], v)
			haveHandle = true
			b = b[n:]
		case (num == fieldSize || num == fieldSenderPID) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "decoding IPC handle message")
			}
			if num == fieldSize {
				m.Size = int(v)
			} else {
				m.SenderPID = int(v)
			}
			b = b[n:]
		case num == fieldMode && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "decoding allocation mode")
			}
			m.Mode = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "skipping unknown field")
			}
			b = b[n:]
		}
	}
	if !haveHandle {
		return m, errors.New("message has no IPC handle")
	}
	return m, nil
}
