// Package connector loads a target description from a YAML file and
// constructs the physmem.PhysicalMemory, arch.Architecture, and cache
// configuration it names, the way an OS-plugin configuration is
// described and loaded once at startup in memflow's original Rust
// sources. The teacher has no direct analogue for this; gopkg.in/yaml.v3
// is already a pack dependency and is the natural fit here.
package connector

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/memscope/arch"
	"github.com/tinyrange/memscope/backend"
	"github.com/tinyrange/memscope/cache"
	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

// ErrUnknownBackend is returned by Load for a backend.kind value that
// does not match one of "dummy", "file", or "driver".
var ErrUnknownBackend = errors.New("connector: unknown backend kind")

// rawConfig is the on-disk YAML shape.
type rawConfig struct {
	Backend struct {
		Kind     string `yaml:"kind"`
		Path     string `yaml:"path"`
		Readonly bool   `yaml:"readonly"`
		SizeMB   uint64 `yaml:"size_mb"`
		Shards   int    `yaml:"shards"`
	} `yaml:"backend"`
	Architecture string `yaml:"architecture"`
	DTB          uint64 `yaml:"dtb"`
	Cache        struct {
		Enabled   bool   `yaml:"enabled"`
		SizeMB    uint64 `yaml:"size_mb"`
		TTLTicks  int64  `yaml:"ttl_ticks"`
		PageTypes uint32 `yaml:"page_type_mask"`
	} `yaml:"cache"`
}

// Target is the fully resolved configuration a connector produces:
// a ready-to-use physmem.PhysicalMemory (cache-wrapped if configured),
// the architecture to translate with, and the directory-table-base to
// translate against.
type Target struct {
	Mem  physmem.PhysicalMemory
	Arch arch.Architecture
	DTB  types.Address
}

// Load parses path and builds the Target it describes.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("connector: read %s: %w", path, err)
	}

	var cfg rawConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("connector: parse %s: %w", path, err)
	}

	mem, err := buildBackend(cfg)
	if err != nil {
		return nil, err
	}

	a, err := architectureByName(cfg.Architecture)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled {
		mem, err = wrapCache(mem, a, cfg)
		if err != nil {
			return nil, err
		}
	}

	return &Target{
		Mem:  mem,
		Arch: a,
		DTB:  types.Address(cfg.DTB),
	}, nil
}

func buildBackend(cfg rawConfig) (physmem.PhysicalMemory, error) {
	switch cfg.Backend.Kind {
	case "dummy":
		size := cfg.Backend.SizeMB
		if size == 0 {
			size = 16
		}
		return backend.NewDummy(uint64(types.MB(size))), nil
	case "file":
		return backend.OpenFile(cfg.Backend.Path, cfg.Backend.Readonly)
	case "driver":
		shards := cfg.Backend.Shards
		if shards == 0 {
			shards = 1
		}
		return backend.OpenDriver(cfg.Backend.Path, shards)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend.Kind)
	}
}

func architectureByName(name string) (arch.Architecture, error) {
	switch name {
	case "", "null":
		return arch.Null, nil
	case "x86_64", "x64":
		return arch.X64, nil
	case "x86_pae", "x86pae":
		return arch.X86PAE, nil
	case "x86":
		return arch.X86, nil
	default:
		return 0, fmt.Errorf("%w: architecture %q", arch.ErrInvalidArchitecture, name)
	}
}

func wrapCache(mem physmem.PhysicalMemory, a arch.Architecture, cfg rawConfig) (physmem.PhysicalMemory, error) {
	sizeMB := cfg.Cache.SizeMB
	if sizeMB == 0 {
		sizeMB = 2
	}

	var validator cache.Validator
	if cfg.Cache.TTLTicks > 0 {
		validator = cache.NewTTLValidator(cfg.Cache.TTLTicks, func() int64 { return time.Now().UnixNano() })
	} else {
		validator = cache.AlwaysValidator{}
	}

	b := cache.NewBuilder().
		Mem(mem).
		Validator(validator).
		PageSize(a.PageSize()).
		CacheSize(types.MB(sizeMB))

	if cfg.Cache.PageTypes != 0 {
		b = b.PageTypeMask(types.PageType(cfg.Cache.PageTypes))
	}

	return b.Build()
}
