package esoimg

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/exp/maps"

	"esovm.org/esovm/evm1"
)

// Linker resolves CALL targets, methods in the image first, then external methods.
type Linker struct {
	img     *Image
	externs map[string]evm1.ExternalFunc
}

func NewLinker(img *Image, externs map[string]evm1.ExternalFunc) *Linker {
	return &Linker{img: img, externs: externs}
}

func (l *Linker) Resolve(ctx context.Context, name string) (evm1.Target, error) {
	if m, ok := l.img.Method(name); ok {
		return evm1.Target{Name: m.Name, Entry: m.Entry, Layout: m.Layout}, nil
	}
	if fn, ok := l.externs[name]; ok {
		return evm1.Target{Name: name, External: fn}, nil
	}
	return evm1.Target{}, fmt.Errorf("no method or external named %q", name)
}

// Externals returns the names of the external methods, sorted.
func (l *Linker) Externals() []string {
	names := maps.Keys(l.externs)
	slices.Sort(names)
	return names
}

// NewThread creates a Thread which runs img from its entry point.
// The constant pool and resolver in env are replaced.
func NewThread(img *Image, externs map[string]evm1.ExternalFunc, env evm1.Env, cfg evm1.Config) (*evm1.Thread, error) {
	env.Constants = img
	env.Resolver = NewLinker(img, externs)
	if img.EntryName != "" {
		cfg.EntryName = img.EntryName
	}
	cfg.EntryLayout = img.EntryLayout
	return evm1.New(img.Code, img.Entry, env, cfg)
}
