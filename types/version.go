// Package types holds values shared across docbench components.
package types //nolint:revive // types is a valid package name

// Version is the canonical project version.
const Version = "0.1.0"
