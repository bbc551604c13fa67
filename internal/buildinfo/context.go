// Package buildinfo holds build-time metadata kept apart from user
// configuration.
package buildinfo

import "runtime/debug"

// UnknownValue stands in for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context is injected at startup from -ldflags values.
type Context struct {
	version   string
	buildDate string
}

// NewContext returns build metadata. When version is empty the module
// version recorded by the Go toolchain is used, if any.
func NewContext(version, buildDate string) *Context {
	if version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	return &Context{version: version, buildDate: buildDate}
}

// Version returns the build version.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// String formats the metadata for --version output.
func (c *Context) String() string {
	return c.Version() + " (built " + c.BuildDate() + ")"
}
