package scenario

import (
	"bytes"

	"github.com/gomlx/zeipc/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNotEnoughDevices is returned when fewer than 2 devices are available: the scenario is skipped,
// which counts as a pass.
var ErrNotEnoughDevices = errors.New("at least 2 devices are needed")

// Selection is the device chosen for a role.
type Selection struct {
	Role   Role
	Device backends.DeviceInfo

	// Ambiguous is set when devices 0 and 1 have the same UUID: both roles then use device 0.
	Ambiguous bool
}

// SelectDevice chooses the device of role among the first 2 devices.
//
// The enumeration order may differ between processes, so the choice only depends on the UUIDs:
// the sender uses the device with the larger UUID and the receiver the other one.
// If the UUIDs are equal both use device 0, and the selection is marked Ambiguous.
func SelectDevice(role Role, devices []backends.DeviceInfo) (Selection, error) {
	if len(devices) < 2 {
		return Selection{}, errors.Wrapf(ErrNotEnoughDevices, "found %d", len(devices))
	}
	cmp := bytes.Compare(devices[0].UUID[:], devices[1].UUID[:])
	sel := Selection{Role: role, Ambiguous: cmp == 0}
	switch role {
	case RoleSender:
		if cmp < 0 {
			sel.Device = devices[1]
		} else {
			sel.Device = devices[0]
		}
	case RoleReceiver:
		if cmp > 0 {
			sel.Device = devices[1]
		} else {
			sel.Device = devices[0]
		}
	default:
		return Selection{}, errors.Errorf("no device selection for role %q", role)
	}
	if sel.Ambiguous {
		klog.Warningf("%s: devices 0 and 1 have the same UUID %s, both roles use device 0", role, devices[0].UUID)
	}
	klog.V(1).Infof("%s: selected device %s", role, sel.Device)
	return sel, nil
}
