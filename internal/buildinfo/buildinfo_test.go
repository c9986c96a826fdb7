package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	stamped := &debug.BuildInfo{
		GoVersion: "go1.25.6",
		Main:      debug.Module{Path: "github.com/agusx1211/ralphloop", Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123456789abcdef01234567"},
			{Key: "vcs.time", Value: "2026-09-30T08:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	checkout := &debug.BuildInfo{GoVersion: "go1.25.6", Main: debug.Module{Version: "(devel)"}}

	tests := []struct {
		name    string
		version string
		commit  string
		date    string
		bi      *debug.BuildInfo
		want    Info
	}{
		{
			name:    "linker overrides win",
			version: "v1.2.3", commit: "abc1234", date: "2026-02-12T10:11:12Z",
			bi:   stamped,
			want: Info{Version: "v1.2.3", CommitHash: "abc1234", BuildDate: "2026-02-12 10:11:12 UTC", GoVersion: "go1.25.6"},
		},
		{
			name:    "go install falls back to module and vcs stamps",
			version: DevVersion,
			bi:      stamped,
			want:    Info{Version: "v0.4.1", CommitHash: "0123456789ab-dirty", BuildDate: "2026-09-30 08:00:00 UTC", GoVersion: "go1.25.6"},
		},
		{
			name:    "devel checkout keeps dev version",
			version: DevVersion,
			bi:      checkout,
			want:    Info{Version: DevVersion, CommitHash: unknown, BuildDate: unknown, GoVersion: "go1.25.6"},
		},
		{
			name: "no build info",
			want: Info{Version: unknown, CommitHash: unknown, BuildDate: unknown, GoVersion: unknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.version, tt.commit, tt.date, tt.bi))
		})
	}
}

func TestCurrentUsesOverrides(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, CommitHash, BuildDate
	t.Cleanup(func() { Version, CommitHash, BuildDate = oldVersion, oldCommit, oldDate })

	Version, CommitHash, BuildDate = "v1.2.3", "abc1234", "2026-02-12T10:11:12Z"
	info := Current()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abc1234", info.CommitHash)
	assert.Equal(t, "2026-02-12 10:11:12 UTC", info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v0.3.0", CommitHash: "deadbee", BuildDate: unknown, GoVersion: "go1.25.6"}
	assert.Equal(t, "v0.3.0 (commit deadbee, built unknown, go1.25.6)", info.String())
}
