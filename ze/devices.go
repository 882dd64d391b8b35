//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"encoding/hex"
	"fmt"
	"unsafe"

	"k8s.io/klog/v2"
)

// UUIDSize is ZE_MAX_DEVICE_UUID_SIZE.
const UUIDSize = 16

// DeviceType is ze_device_type_t.
type DeviceType uint32

const (
	DeviceTypeGPU  DeviceType = 1
	DeviceTypeCPU  DeviceType = 2
	DeviceTypeFPGA DeviceType = 3
	DeviceTypeMCA  DeviceType = 4
	DeviceTypeVPU  DeviceType = 5
)

// String implements fmt.Stringer.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeFPGA:
		return "FPGA"
	case DeviceTypeMCA:
		return "MCA"
	case DeviceTypeVPU:
		return "VPU"
	}
	return fmt.Sprintf("DeviceType(%d)", uint32(t))
}

// DeviceProperties holds the subset of ze_device_properties_t the package exposes.
type DeviceProperties struct {
	Name            string
	Type            DeviceType
	VendorID        uint32
	DeviceID        uint32
	SubdeviceID     uint32
	MaxMemAllocSize uint64

	// UUID uniquely identifies the physical device. It is stable across processes.
	UUID [UUIDSize]byte
}

// String implements fmt.Stringer.
func (p DeviceProperties) String() string {
	return fmt.Sprintf("%s %q (vendor=0x%x, device=0x%x, uuid=%s)", p.Type, p.Name, p.VendorID, p.DeviceID,
		hex.EncodeToString(p.UUID[:]))
}

// Device is a lightweight reference to a ze_device_handle_t: it is owned by its driver.
type Device struct {
	driver *Driver
	c      C.ze_device_handle_t
}

// Devices returns the devices of the driver. Level Zero doesn't guarantee the order is the same
// across processes, see DeviceProperties.UUID for a stable identifier.
func (d *Driver) Devices() ([]*Device, error) {
	api := d.loader.api
	count := cMalloc[C.uint32_t]()
	defer cFree(count)
	if err := toError("zeDeviceGet", C.call_zeDeviceGet(api, d.c, count, nil)); err != nil {
		return nil, err
	}
	n := int(*count)
	if n == 0 {
		return nil, nil
	}
	cDevices := cMallocArray[C.ze_device_handle_t](n)
	defer cFree(cDevices)
	if err := toError("zeDeviceGet", C.call_zeDeviceGet(api, d.c, count, cDevices)); err != nil {
		return nil, err
	}
	devices := make([]*Device, int(*count))
	for ii, cDevice := range cDataToSlice[C.ze_device_handle_t](unsafe.Pointer(cDevices), int(*count)) {
		devices[ii] = &Device{driver: d, c: cDevice}
	}
	klog.V(2).Infof("zeDeviceGet: %d devices", len(devices))
	return devices, nil
}

// Properties calls zeDeviceGetProperties.
func (d *Device) Properties() (DeviceProperties, error) {
	cProps := cMalloc[C.ze_device_properties_t]()
	defer cFree(cProps)
	cProps.stype = C.ZE_STRUCTURE_TYPE_DEVICE_PROPERTIES
	err := toError("zeDeviceGetProperties", C.call_zeDeviceGetProperties(d.driver.loader.api, d.c, cProps))
	if err != nil {
		return DeviceProperties{}, err
	}
	props := DeviceProperties{
		Name:            cCharArrayToString(cProps.name[:]),
		Type:            DeviceType(cProps._type),
		VendorID:        uint32(cProps.vendorId),
		DeviceID:        uint32(cProps.deviceId),
		SubdeviceID:     uint32(cProps.subdeviceId),
		MaxMemAllocSize: uint64(cProps.maxMemAllocSize),
	}
	for ii := range props.UUID {
		props.UUID[ii] = byte(cProps.uuid.id[ii])
	}
	return props, nil
}

// Driver returns the driver owning the device.
func (d *Device) Driver() *Driver {
	return d.driver
}
