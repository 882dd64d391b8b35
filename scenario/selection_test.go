package scenario

import (
	"testing"

	"github.com/gomlx/zeipc/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func devicesWithUUIDs(ids ...string) []backends.DeviceInfo {
	devices := make([]backends.DeviceInfo, len(ids))
	for ii, id := range ids {
		devices[ii] = backends.DeviceInfo{Index: ii, UUID: uuid.MustParse(id), Name: id}
	}
	return devices
}

func TestSelectDevice(t *testing.T) {
	const low, high = "00000000-0000-0000-0000-000000000001", "ff000000-0000-0000-0000-000000000000"
	for _, ids := range [][]string{{low, high}, {high, low}, {low, high, low}} {
		devices := devicesWithUUIDs(ids...)
		sender, err := SelectDevice(RoleSender, devices)
		require.NoError(t, err)
		receiver, err := SelectDevice(RoleReceiver, devices)
		require.NoError(t, err)
		require.Equal(t, high, sender.Device.UUID.String(), "sender uses the larger UUID")
		require.Equal(t, low, receiver.Device.UUID.String(), "receiver uses the smaller UUID")
		require.NotEqual(t, sender.Device.Index, receiver.Device.Index)
		require.False(t, sender.Ambiguous)
		require.False(t, receiver.Ambiguous)
	}

	// Selection doesn't depend on the enumeration order of each process.
	senderView := devicesWithUUIDs(low, high)
	receiverView := devicesWithUUIDs(high, low)
	sender, _ := SelectDevice(RoleSender, senderView)
	receiver, _ := SelectDevice(RoleReceiver, receiverView)
	require.NotEqual(t, sender.Device.UUID, receiver.Device.UUID)
}

func TestSelectDeviceEqualUUIDs(t *testing.T) {
	const id = "12345678-1234-1234-1234-123456789abc"
	devices := devicesWithUUIDs(id, id)
	for _, role := range []Role{RoleSender, RoleReceiver} {
		sel, err := SelectDevice(role, devices)
		require.NoError(t, err)
		require.True(t, sel.Ambiguous)
		require.Equal(t, 0, sel.Device.Index)
	}
}

func TestSelectDeviceErrors(t *testing.T) {
	for _, n := range []int{0, 1} {
		_, err := SelectDevice(RoleSender, devicesWithUUIDs("00000000-0000-0000-0000-000000000001")[:n])
		require.True(t, errors.Is(err, ErrNotEnoughDevices))
	}
	_, err := SelectDevice(RoleWatcher, devicesWithUUIDs(
		"00000000-0000-0000-0000-000000000001", "00000000-0000-0000-0000-000000000002"))
	require.Error(t, err)
}
