package internal

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Set at build time with -ldflags "-X github.com/infrahq/custody/internal.Version=...".
var (
	Branch     = "main"
	Version    = "0.1.0"
	Prerelease = ""
	Metadata   = "dev"
	Commit     = ""
	Date       = ""
)

// FullVersion is the semver of the build. Development builds (Metadata "dev")
// report the next patch version, so they sort after the last release.
func FullVersion() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		panic(fmt.Sprintf("invalid version %v: %v", Version, err))
	}

	if Metadata == "dev" {
		*v = v.IncPatch()
	}
	if Prerelease != "" {
		if *v, err = v.SetPrerelease(Prerelease); err != nil {
			panic(fmt.Sprintf("invalid prerelease %v: %v", Prerelease, err))
		}
	}
	if Metadata != "" {
		if *v, err = v.SetMetadata(Metadata); err != nil {
			panic(fmt.Sprintf("invalid metadata %v: %v", Metadata, err))
		}
	}
	return v.String()
}
