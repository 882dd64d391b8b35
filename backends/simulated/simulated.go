//go:build linux

// Package simulated implements a hardware-free backends.Backend: device memory is a memfd mapped in the
// process, and IPC handles carry the memfd descriptor, so memory can be shared across processes exactly
// like with a Level Zero driver.
//
// It registers itself as "sim". The configuration is a comma separated list of options:
//
//   - devices=N: number of devices, default 2.
//   - uuids=<uuid>/<uuid>/...: explicit device UUIDs, which also sets the number of devices.
//   - shuffle: the enumeration order depends on the process id.
//   - corrupt: memory imported with OpenIPCHandle reads back with one byte flipped.
//   - fail=<op>: the named operation fails. One of alloc, reserve, get_ipc, open_ipc or copy.
//
// Example: "sim:devices=2,shuffle".
package simulated

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/zeipc/backends"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in backends.NewWithConfig.
const BackendName = "sim"

// PageSize used to round up reserved allocations.
const PageSize = 64 * 1024

// DefaultNumDevices when the configuration doesn't set one.
const DefaultNumDevices = 2

// Operation names that can be made to fail with the "fail=<op>" option.
const (
	OpAlloc   = "alloc"
	OpReserve = "reserve"
	OpGetIPC  = "get_ipc"
	OpOpenIPC = "open_ipc"
	OpCopy    = "copy"
)

var validOps = []string{OpAlloc, OpReserve, OpGetIPC, OpOpenIPC, OpCopy}

// ErrInjected is returned (wrapped) by operations made to fail with the "fail=<op>" option.
var ErrInjected = errors.New("simulated driver failure")

func init() {
	backends.Register(BackendName, New)
}

// Backend implements backends.Backend over memfd shared memory.
type Backend struct {
	config  string
	devices []backends.DeviceInfo
	corrupt bool
	failOp  string
}

// Compile time check.
var _ backends.Backend = (*Backend)(nil)

// New constructs a simulated backend from its configuration, see package documentation.
func New(config string) (backends.Backend, error) {
	b := &Backend{config: config}
	numDevices := DefaultNumDevices
	var uuids []uuid.UUID
	var shuffle bool
	for _, option := range strings.Split(config, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(option), "=")
		switch key {
		case "":
		case "devices":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, errors.Errorf("invalid number of devices in option %q", option)
			}
			numDevices = n
		case "uuids":
			for _, s := range strings.Split(value, "/") {
				id, err := uuid.Parse(s)
				if err != nil {
					return nil, errors.Wrapf(err, "invalid device uuid %q", s)
				}
				uuids = append(uuids, id)
			}
		case "shuffle":
			shuffle = true
		case "corrupt":
			b.corrupt = true
		case "fail":
			if !slices.Contains(validOps, value) {
				return nil, errors.Errorf("unknown operation %q in option %q, valid operations are %v", value, option, validOps)
			}
			b.failOp = value
		default:
			return nil, errors.Errorf("unknown option %q for backend %q", option, BackendName)
		}
	}
	if uuids == nil {
		for ii := range numDevices {
			uuids = append(uuids, DeviceUUID(ii))
		}
	}

	// Physical order, possibly rotated per process.
	offset := 0
	if shuffle && len(uuids) > 0 {
		offset = os.Getpid() % len(uuids)
	}
	for ii := range uuids {
		physical := (ii + offset) % len(uuids)
		b.devices = append(b.devices, backends.DeviceInfo{
			Index: ii,
			UUID:  uuids[physical],
			Name:  fmt.Sprintf("Simulated GPU %d", physical),
		})
	}
	klog.V(1).Infof("%s: %d devices %v", b.Description(), len(b.devices), b.devices)
	return b, nil
}

// DeviceUUID returns the UUID of the simulated device with the given physical index. It is the same in every process.
func DeviceUUID(physicalIndex int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("zeipc/simulated/device/%d", physicalIndex)))
}

// Name implements backends.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Description implements backends.Backend.
func (b *Backend) Description() string {
	if b.config == "" {
		return "simulated driver"
	}
	return fmt.Sprintf("simulated driver (%s)", b.config)
}

// Devices implements backends.Backend.
func (b *Backend) Devices() ([]backends.DeviceInfo, error) {
	return append([]backends.DeviceInfo(nil), b.devices...), nil
}

// NewContext implements backends.Backend.
func (b *Backend) NewContext() (backends.Context, error) {
	return &Context{backend: b, live: make(map[any]string)}, nil
}

// Finalize implements backends.Backend.
func (b *Backend) Finalize() {}

// maybeFail returns an injected error if op is configured to fail.
func (b *Backend) maybeFail(op string) error {
	if b.failOp == op {
		return errors.Wrapf(ErrInjected, "%s (fail=%s)", op, op)
	}
	return nil
}

func (b *Backend) checkDevice(device int) error {
	if device < 0 || device >= len(b.devices) {
		return errors.Errorf("invalid device index %d, backend has %d devices", device, len(b.devices))
	}
	return nil
}
