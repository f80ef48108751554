// Package config holds the shared limits and capability defaults consulted
// by the type checker, the VM, and the CLI collaborator.
package config

// Capability is a compile-time permission label required to invoke a
// privileged built-in (§4.9).
type Capability string

const (
	FsRead        Capability = "FsRead"
	FsWrite       Capability = "FsWrite"
	NetAccess     Capability = "NetAccess"
	SysInfo       Capability = "SysInfo"
	OsExecute     Capability = "OsExecute"
	ThreadControl Capability = "ThreadControl"
)

// DefaultGrants is the capability set the CLI grants by default (§6).
func DefaultGrants() map[Capability]bool {
	return map[Capability]bool{
		FsRead:    true,
		FsWrite:   true,
		NetAccess: true,
		SysInfo:   true,
		OsExecute: true,
	}
}

// MaxTicks bounds the reactive scheduler's re-execution loop (§4.17).
const MaxTicks = 1000

// MaxInstantiationDepth bounds type-term nesting during unification (§4.7).
const MaxInstantiationDepth = 32

// CurrentBuild is compared against a source-level `#version N` directive (§6).
const CurrentBuild = 1

// Config bundles the limits above behind functional-option construction, in
// the teacher's style of composable VM/compiler setup.
type Config struct {
	MaxTicks              int
	MaxInstantiationDepth int
	Grants                map[Capability]bool
}

type Option func(*Config)

func WithGrants(grants map[Capability]bool) Option {
	return func(c *Config) { c.Grants = grants }
}

func WithMaxTicks(n int) Option {
	return func(c *Config) { c.MaxTicks = n }
}

func New(opts ...Option) *Config {
	c := &Config{
		MaxTicks:              MaxTicks,
		MaxInstantiationDepth: MaxInstantiationDepth,
		Grants:                DefaultGrants(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Config) Granted(cap Capability) bool {
	return c.Grants[cap]
}
