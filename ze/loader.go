//go:build linux && cgo

package ze

/*
#include "ze_minimal.h"
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InitFlags are the ze_init_flags_t passed to zeInit.
type InitFlags uint32

const (
	// InitFlagGPUOnly restricts zeInit to GPU drivers (ZE_INIT_FLAG_GPU_ONLY).
	InitFlagGPUOnly InitFlags = 1
	// InitFlagVPUOnly restricts zeInit to VPU drivers (ZE_INIT_FLAG_VPU_ONLY).
	InitFlagVPUOnly InitFlags = 2
)

// Loader represents the loaded Level Zero loader library, the entry point of every other object.
//
// Loaders are cached per library path: Load returns the same *Loader when called again.
type Loader struct {
	name, path string
	dll        *linuxDLLHandle
	api        *C.zeApi

	muInit      sync.Mutex
	initialized bool
}

// Load opens the Level Zero loader library.
//
// With an empty name it searches for LoaderNames in ZE_LOADER_LIBRARY_PATH (a ":" separated list of
// directories or the absolute path to the library), or if it is not set, in LD_LIBRARY_PATH, the
// directories of /etc/ld.so.conf and the standard system directories.
// A non-empty name can be a file name to search for, or an absolute path.
func Load(name string) (*Loader, error) {
	return loadNamedLoader(name)
}

// Path returns the path from where the loader was opened.
func (l *Loader) Path() string {
	return l.path
}

// String implements fmt.Stringer.
func (l *Loader) String() string {
	return fmt.Sprintf("Level Zero loader (%s)", l.path)
}

// Init calls zeInit. It must be called once per process before any other call, and it is a no-op
// after it succeeded once.
//
// Level Zero doesn't define the behaviour of an initialized driver after fork(), so every process of a
// multi-process program must call Init itself.
func (l *Loader) Init(flags InitFlags) error {
	l.muInit.Lock()
	defer l.muInit.Unlock()
	if l.initialized {
		return nil
	}
	if err := toError("zeInit", C.call_zeInit(l.api, C.ze_init_flags_t(flags))); err != nil {
		return err
	}
	l.initialized = true
	klog.V(1).Infof("%s initialized", l)
	return nil
}

// Drivers returns the drivers available, in the order reported by the loader.
// The first one is the default driver.
func (l *Loader) Drivers() ([]*Driver, error) {
	count := cMalloc[C.uint32_t]()
	defer cFree(count)
	if err := toError("zeDriverGet", C.call_zeDriverGet(l.api, count, nil)); err != nil {
		return nil, err
	}
	n := int(*count)
	if n == 0 {
		return nil, nil
	}
	cDrivers := cMallocArray[C.ze_driver_handle_t](n)
	defer cFree(cDrivers)
	if err := toError("zeDriverGet", C.call_zeDriverGet(l.api, count, cDrivers)); err != nil {
		return nil, err
	}
	drivers := make([]*Driver, int(*count))
	for ii, d := range cDataToSlice[C.ze_driver_handle_t](unsafe.Pointer(cDrivers), int(*count)) {
		drivers[ii] = &Driver{loader: l, c: d}
	}
	return drivers, nil
}

// DefaultDriver returns the first driver reported by the loader.
func (l *Loader) DefaultDriver() (*Driver, error) {
	drivers, err := l.Drivers()
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return nil, errors.Errorf("%s reports no drivers", l)
	}
	return drivers[0], nil
}

// Driver is a reference to a ze_driver_handle_t. Drivers are owned by the loader and need no destruction.
type Driver struct {
	loader *Loader
	c      C.ze_driver_handle_t
}

// Loader returns the Loader the driver was enumerated from.
func (d *Driver) Loader() *Loader {
	return d.loader
}
