// Package version holds build information injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/chmdznr/drivetext/pkg/version.Version=v0.2.0"
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
