// Package version exposes the build version stamped at link time.
package version

// Version is overridden at build time via:
//
//	go build -ldflags "-X github.com/jaylee/stocklab-trader/internal/version.Version=v1.2.3"
var Version = "dev"
