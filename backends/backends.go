// Package backends defines the interface a GPU driver needs to implement to run the multi-device IPC
// scenario, and a registry of the available implementations.
//
// It is modeled after Level Zero's API, since it's the production implementation (see package
// backends/levelzero). Package backends/simulated implements it over shared memory files, so the
// scenario can run on machines without GPUs.
//
// Devices are referred to by their index in Backend.Devices. The order is not guaranteed to be the
// same across processes, only DeviceInfo.UUID is.
package backends

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// DeviceInfo describes one device of a backend.
type DeviceInfo struct {
	// Index of the device in Backend.Devices, in this process.
	Index int

	// UUID identifies the physical device, and is the same in every process.
	UUID uuid.UUID

	// Name is a human-readable description of the device.
	Name string
}

// String implements fmt.Stringer.
func (d DeviceInfo) String() string {
	return fmt.Sprintf("#%d %q (%s)", d.Index, d.Name, d.UUID)
}

// Backend is the API that needs to be implemented by a driver backend.
//
// Each process creates its own Backend: driver state is not inherited by child processes.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "levelzero".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Devices enumerates the devices of the default driver.
	Devices() ([]DeviceInfo, error)

	// NewContext creates a context, owner of every allocation, command list and queue.
	NewContext() (Context, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Buffer is memory that can be the source or destination of a copy: either device Memory or HostMemory.
type Buffer interface {
	// Size in bytes.
	Size() int
}

// Memory is device memory: allocated with Context.AllocDevice or Context.ReserveAndMap, or imported
// with Context.OpenIPCHandle. It is not accessible from the host.
type Memory interface {
	Buffer

	// Free releases memory allocated by this process. Imported memory must be released with
	// Context.CloseIPCHandle instead.
	Free() error
}

// HostMemory is host memory accessible by every device of its context.
type HostMemory interface {
	Buffer

	// Bytes returns a view of the memory, valid until Free is called.
	Bytes() []byte

	// Free releases the memory.
	Free() error
}

// Context owns allocations, command lists and queues.
type Context interface {
	// AllocDevice allocates size bytes of device local memory.
	AllocDevice(device, size int) (Memory, error)

	// ReserveAndMap reserves a virtual address range, creates physical memory on the device and maps it
	// read-write into the range. The size is rounded up to the device page size.
	ReserveAndMap(device, size int) (Memory, error)

	// AllocHost allocates size bytes of host memory.
	AllocHost(size int) (HostMemory, error)

	// NewCommandList creates a command list for the device, using the first command queue group.
	NewCommandList(device int) (CommandList, error)

	// NewCommandQueue creates a command queue for the device, using the first command queue group.
	NewCommandQueue(device int) (CommandQueue, error)

	// GetIPCHandle exports mem for other processes. The handle carries a file descriptor of this
	// process, see IPCHandle.FD.
	GetIPCHandle(mem Memory) (IPCHandle, error)

	// OpenIPCHandle imports memory exported by another process, for use by device. The descriptor in the
	// handle must be valid in this process.
	OpenIPCHandle(device int, handle IPCHandle) (Memory, error)

	// CloseIPCHandle releases memory returned by OpenIPCHandle.
	CloseIPCHandle(mem Memory) error

	// Destroy releases the context. Everything created with it must be released before.
	Destroy() error
}

// CommandList records commands to be executed by a CommandQueue.
type CommandList interface {
	// AppendMemoryCopy appends a copy of size bytes from src to dst. Either can be device or host memory.
	AppendMemoryCopy(dst, src Buffer, size int) error

	// Close finishes recording: no more commands can be appended.
	Close() error

	// Destroy releases the command list.
	Destroy() error
}

// CommandQueue executes closed command lists on its device.
type CommandQueue interface {
	// ExecuteCommandLists submits the closed command lists for execution. It may return before they finish.
	ExecuteCommandLists(lists ...CommandList) error

	// Synchronize blocks until everything submitted finished.
	Synchronize() error

	// Destroy releases the queue.
	Destroy() error
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// Registered returns the names of the registered backends, sorted.
func Registered() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	keys := maps.Keys(registeredConstructors)
	slices.Sort(keys)
	return keys
}

// DefaultConfig is the backend configuration used by New if ZEIPC_BACKEND is not set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// ConfigEnv is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
const ConfigEnv = "ZEIPC_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment ZEIPC_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	if config, found := os.LookupEnv(ConfigEnv); found && config != "" {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates the backend described by config.
//
// The format of config is "<backend_name>:<backend_configuration>", or just "<backend_name>".
// The "<backend_name>" is the name of a registered backend (e.g.: "levelzero") and
// "<backend_configuration>" is backend specific (e.g.: for the simulated backend, "devices=2,shuffle").
// An empty config selects the first registered backend.
func NewWithConfig(config string) (Backend, error) {
	muRegistry.Lock()
	if len(registeredConstructors) == 0 {
		muRegistry.Unlock()
		return nil, errors.New(`no registered backends -- maybe import the default one with import _ "github.com/gomlx/zeipc/backends/levelzero"?`)
	}
	backendName, backendConfig, _ := strings.Cut(config, ":")
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	muRegistry.Unlock()
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends: %v",
			backendName, config, Registered())
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "creating backend %q", backendName)
	}
	return backend, nil
}
