// Package utils holds small helpers that don't warrant their own package
package utils

// Build metadata, overridden via -ldflags at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)
