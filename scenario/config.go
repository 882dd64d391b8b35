package scenario

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EnvPrefix of the environment variables read by LoadConfig, e.g. ZEIPC_BUFFER_SIZE.
const EnvPrefix = "ZEIPC"

// AllocMode selects how the sender allocates the shared device memory.
type AllocMode string

const (
	// AllocDevice uses a plain device allocation (zeMemAllocDevice).
	AllocDevice AllocMode = "device"

	// AllocReserved reserves a virtual address range and maps physical memory created on the device into it.
	AllocReserved AllocMode = "reserved"
)

// AllocModes lists every allocation mode, in the order RunAll runs them.
var AllocModes = []AllocMode{AllocDevice, AllocReserved}

// Role of a process in the scenario.
type Role string

const (
	RoleWatcher  Role = "watcher"
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// DefaultChannelFD is the descriptor of the channel in the receiver: the first of exec.Cmd.ExtraFiles.
const DefaultChannelFD = 3

// Config of the scenario. Every process reads it from the environment (see LoadConfig), and the parent
// process writes it into the environment of its child.
type Config struct {
	// Backend configuration, see backends.NewWithConfig. Empty uses the default backend.
	Backend string `envconfig:"BACKEND"`

	// BufferSize is the number of bytes shared and verified.
	BufferSize int `envconfig:"BUFFER_SIZE" default:"4096"`

	AllocMode AllocMode `envconfig:"ALLOC_MODE" default:"device"`

	// PatternSeed of the data pattern, see WriteDataPattern.
	PatternSeed uint8 `envconfig:"PATTERN_SEED" default:"1"`

	// Verbosity of the klog logs (-v) in child processes.
	Verbosity int `envconfig:"VERBOSITY" default:"0"`

	// Role of this process: empty for the top-level process.
	Role Role `envconfig:"ROLE"`

	// ChannelFD is the descriptor of the inherited channel, in the receiver.
	ChannelFD int `envconfig:"CHANNEL_FD" default:"3"`
}

// DefaultConfig returns the configuration with the default values.
func DefaultConfig() Config {
	return Config{
		BufferSize:  4096,
		AllocMode:   AllocDevice,
		PatternSeed: 1,
		ChannelFD:   DefaultChannelFD,
	}
}

// LoadConfig reads the configuration from the ZEIPC_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to load configuration from environment")
	}
	return cfg, cfg.Validate()
}

// Validate returns an error if the configuration can't be used.
func (c Config) Validate() error {
	if c.BufferSize <= 0 {
		return errors.Errorf("invalid buffer size %d", c.BufferSize)
	}
	if c.PatternSeed == 0 {
		return errors.New("invalid pattern seed 0, it writes an all zero pattern that matches an untouched buffer")
	}
	switch c.AllocMode {
	case AllocDevice, AllocReserved:
	default:
		return errors.Errorf("invalid allocation mode %q, valid modes are %v", c.AllocMode, AllocModes)
	}
	switch c.Role {
	case "", RoleWatcher, RoleSender, RoleReceiver:
	default:
		return errors.Errorf("invalid role %q", c.Role)
	}
	return nil
}

// environ returns the environment for a child process with the given role: the current environment
// without ZEIPC_* variables, plus the configuration.
func (c Config) environ(role Role) []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, EnvPrefix+"_") {
			env = append(env, kv)
		}
	}
	set := func(name string, value any) {
		env = append(env, fmt.Sprintf("%s_%s=%v", EnvPrefix, name, value))
	}
	if c.Backend != "" {
		set("BACKEND", c.Backend)
	}
	set("BUFFER_SIZE", c.BufferSize)
	set("ALLOC_MODE", c.AllocMode)
	set("PATTERN_SEED", c.PatternSeed)
	set("VERBOSITY", c.Verbosity)
	set("ROLE", role)
	if role == RoleReceiver {
		set("CHANNEL_FD", DefaultChannelFD)
	}
	return env
}

// SetVerbosity sets the klog verbosity (the -v flag) of the process.
func SetVerbosity(level int) error {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	return errors.Wrap(fs.Set("v", strconv.Itoa(level)), "setting klog verbosity")
}
