// Package buildinfo reports which ralph-loop build is running. Release
// builds stamp it through the linker:
//
//	go build -ldflags "-X github.com/agusx1211/ralphloop/internal/buildinfo.Version=v0.2.0 \
//	  -X github.com/agusx1211/ralphloop/internal/buildinfo.CommitHash=$(git rev-parse HEAD)"
//
// Plain `go build` and `go install` builds fall back to the module version
// and VCS stamps recorded by the toolchain.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// DevVersion is the version reported by unstamped builds from a checkout.
const DevVersion = "dev"

const unknown = "unknown"

// shortCommitLen matches the abbreviation git uses for ralph-loop commits.
const shortCommitLen = 12

// Set with -ldflags -X; empty values are resolved from the binary's build info.
var (
	Version    = DevVersion
	CommitHash = ""
	BuildDate  = ""
)

// Info describes the running binary.
type Info struct {
	Version    string
	CommitHash string
	BuildDate  string
	GoVersion  string
}

// Current resolves the build metadata of the running ralph-loop binary.
func Current() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(Version, CommitHash, BuildDate, bi)
}

func resolve(version, commit, date string, bi *debug.BuildInfo) Info {
	info := Info{
		Version:    strings.TrimSpace(version),
		CommitHash: strings.TrimSpace(commit),
		BuildDate:  strings.TrimSpace(date),
	}

	if bi != nil {
		info.GoVersion = bi.GoVersion
		if (info.Version == "" || info.Version == DevVersion) && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			// Installed with `go install github.com/agusx1211/ralphloop/cmd/ralph-loop@vX`.
			info.Version = bi.Main.Version
		}
		vcs := vcsStamp(bi.Settings)
		if info.CommitHash == "" {
			info.CommitHash = vcs.revision
			if info.CommitHash != "" && vcs.modified {
				info.CommitHash += "-dirty"
			}
		}
		if info.BuildDate == "" {
			info.BuildDate = vcs.time
		}
	}

	info.CommitHash = shortCommit(info.CommitHash)
	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	info.Version = orUnknown(info.Version)
	info.CommitHash = orUnknown(info.CommitHash)
	info.BuildDate = orUnknown(info.BuildDate)
	info.GoVersion = orUnknown(info.GoVersion)
	return info
}

type vcs struct {
	revision string
	time     string
	modified bool
}

func vcsStamp(settings []debug.BuildSetting) vcs {
	var v vcs
	for _, s := range settings {
		val := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			v.revision = val
		case "vcs.time":
			v.time = val
		case "vcs.modified":
			v.modified = strings.EqualFold(val, "true")
		}
	}
	return v
}

// shortCommit abbreviates a full hash, keeping any -dirty suffix.
func shortCommit(c string) string {
	hash, dirty := strings.CutSuffix(c, "-dirty")
	if len(hash) > shortCommitLen {
		hash = hash[:shortCommitLen]
	}
	if dirty {
		return hash + "-dirty"
	}
	return hash
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// String renders the metadata for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", i.Version, i.CommitHash, i.BuildDate, i.GoVersion)
}
