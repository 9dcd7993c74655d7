// Package version provides build and version information.
package version

// Version is the current application version.
// Update this at logical milestones.
const Version = "0.3.0"

// Milestones:
// 0.1.0 - Source SDK: HTTP, DOM and JSON wrappers, sections and patterns
// 0.2.0 - Plugin manager with Go and Lua loaders
// 0.3.0 - Drop-in descriptors, response cache, TUI
// 1.0.0 - (planned) Stable plugin API
