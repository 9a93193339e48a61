package esoss

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"esovm.org/esovm/evm1"
)

const (
	SchedRoundRobin = "round-robin"
	SchedParallel   = "parallel"
)

// Config configures a System. It is loaded from TOML, keys which are absent keep their defaults.
type Config struct {
	VM      VMConfig      `toml:"vm"`
	Memory  MemoryConfig  `toml:"memory"`
	Sched   SchedConfig   `toml:"sched"`
	Devices DevicesConfig `toml:"devices"`
	Store   StoreConfig   `toml:"store"`
}

type VMConfig struct {
	// StackSize is the operand stack capacity of each thread, in bytes
	StackSize int `toml:"stack_size"`
	MaxFrames int `toml:"max_frames"`
}

// MemoryConfig sizes the flat memory shared by the threads of a run.
// A Size of 0 runs without memory.
type MemoryConfig struct {
	Size      uint64 `toml:"size"`
	StackSize uint64 `toml:"stack_size"`
}

type SchedConfig struct {
	Mode string `toml:"mode"`
	// Quantum is the number of cycles a thread runs before the round robin scheduler moves on
	Quantum uint64 `toml:"quantum"`
	// MaxCycles limits the total cycles of each thread, 0 is unlimited
	MaxCycles uint64 `toml:"max_cycles"`
}

type DevicesConfig struct {
	Console bool `toml:"console"`
	Clock   bool `toml:"clock"`
	Random  bool `toml:"random"`
	// RandomSeed makes the random device reproducible if it is not empty
	RandomSeed string `toml:"random_seed"`
}

type StoreConfig struct {
	// DB is the path to the sqlite database
	DB string `toml:"db"`
}

func DefaultConfig() Config {
	vmc := evm1.DefaultConfig()
	return Config{
		VM: VMConfig{
			StackSize: vmc.StackSize,
			MaxFrames: vmc.MaxFrames,
		},
		Memory: MemoryConfig{
			Size:      1 << 20,
			StackSize: 1 << 16,
		},
		Sched: SchedConfig{
			Mode:    SchedRoundRobin,
			Quantum: 1024,
		},
		Devices: DevicesConfig{
			Console: true,
			Clock:   true,
			Random:  true,
		},
		Store: StoreConfig{
			DB: "esovm.db",
		},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.VM.StackSize <= 0 {
		errs = append(errs, fmt.Errorf("vm.stack_size must be positive, have %d", c.VM.StackSize))
	}
	if c.VM.MaxFrames <= 0 {
		errs = append(errs, fmt.Errorf("vm.max_frames must be positive, have %d", c.VM.MaxFrames))
	}
	if c.Memory.StackSize > c.Memory.Size {
		errs = append(errs, fmt.Errorf("memory.stack_size %d is larger than memory.size %d", c.Memory.StackSize, c.Memory.Size))
	}
	switch c.Sched.Mode {
	case SchedRoundRobin, SchedParallel:
	default:
		errs = append(errs, fmt.Errorf("sched.mode must be %q or %q, have %q", SchedRoundRobin, SchedParallel, c.Sched.Mode))
	}
	if c.Sched.Quantum == 0 {
		errs = append(errs, errors.New("sched.quantum must be positive"))
	}
	return errors.Join(errs...)
}

// ParseConfig decodes TOML over the defaults and validates the result
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads the config file at p
func LoadConfig(p string) (Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", p, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", p, err)
	}
	return cfg, nil
}

// ThreadConfig is the evm1.Config for threads started by the System
func (c Config) ThreadConfig() evm1.Config {
	cfg := evm1.DefaultConfig()
	cfg.StackSize = c.VM.StackSize
	cfg.MaxFrames = c.VM.MaxFrames
	return cfg
}
