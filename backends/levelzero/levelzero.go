//go:build linux && cgo

package levelzero

import (
	"fmt"

	"github.com/gomlx/zeipc/backends"
	"github.com/gomlx/zeipc/ze"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in backends.NewWithConfig.
const BackendName = "levelzero"

func init() {
	backends.Register(BackendName, New)
}

// Backend implements backends.Backend over the default Level Zero driver.
type Backend struct {
	loader  *ze.Loader
	driver  *ze.Driver
	devices []*ze.Device
	infos   []backends.DeviceInfo
}

var _ backends.Backend = (*Backend)(nil)

// New loads the Level Zero loader (config is its name or path, empty for the default search), initializes
// it and enumerates the devices of the default driver.
func New(config string) (backends.Backend, error) {
	loader, err := ze.Load(config)
	if err != nil {
		return nil, err
	}
	if err = loader.Init(0); err != nil {
		return nil, errors.WithMessage(err, "initializing Level Zero")
	}
	b := &Backend{loader: loader}
	b.driver, err = loader.DefaultDriver()
	if err != nil {
		return nil, err
	}
	b.devices, err = b.driver.Devices()
	if err != nil {
		return nil, err
	}
	for ii, device := range b.devices {
		props, err := device.Properties()
		if err != nil {
			return nil, errors.WithMessagef(err, "device #%d", ii)
		}
		b.infos = append(b.infos, backends.DeviceInfo{
			Index: ii,
			UUID:  uuid.UUID(props.UUID),
			Name:  props.Name,
		})
		klog.V(1).Infof("Level Zero device #%d: %s", ii, props)
	}
	return b, nil
}

// Name implements backends.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return fmt.Sprintf("Level Zero, %s", b.loader)
}

// Devices implements backends.Backend.
func (b *Backend) Devices() ([]backends.DeviceInfo, error) {
	return append([]backends.DeviceInfo(nil), b.infos...), nil
}

// Finalize implements backends.Backend. Level Zero has no driver tear down: loader and drivers live until the
// process exits.
func (b *Backend) Finalize() {
	b.devices = nil
	b.infos = nil
}

func (b *Backend) device(index int) (*ze.Device, error) {
	if index < 0 || index >= len(b.devices) {
		return nil, errors.Errorf("invalid device index %d, driver has %d devices", index, len(b.devices))
	}
	return b.devices[index], nil
}

// NewContext implements backends.Backend.
func (b *Backend) NewContext() (backends.Context, error) {
	ctx, err := b.driver.NewContext()
	if err != nil {
		return nil, err
	}
	return &Context{backend: b, ctx: ctx}, nil
}
