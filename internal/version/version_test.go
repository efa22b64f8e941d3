package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stubBuild(t *testing.T, version, commit, buildTime string, info *debug.BuildInfo) {
	t.Helper()
	oldV, oldC, oldT, oldRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = oldV, oldC, oldT, oldRead
	})
	Version, GitCommit, BuildTime = version, commit, buildTime
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestReleaseBuild(t *testing.T) {
	stubBuild(t, "v1.4.0", "0123456789abcdef", "2026-03-01T10:00:00Z", nil)

	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())
	assert.False(t, IsDirty())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)

	detailed := GetDetailedVersion()
	assert.Contains(t, detailed, "Version: v1.4.0")
	assert.Contains(t, detailed, "Commit: 0123456789abcdef")
	assert.Contains(t, detailed, "Built: 2026-03-01T10:00:00Z")
	assert.True(t, strings.HasSuffix(detailed, "Platform: "+info.Platform))
}

func TestDevBuildFallsBackToVCS(t *testing.T) {
	stubBuild(t, "dev", "unknown", "unknown", &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "fedcba9876543210"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "fedcba9876543210", GetGitCommit())
	assert.Equal(t, "dev-fedcba9", GetShortVersion())
	assert.False(t, IsRelease())
	assert.True(t, IsDirty())
	assert.Contains(t, GetDetailedVersion(), "Commit: fedcba9876543210 (dirty)")
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestModuleVersion(t *testing.T) {
	stubBuild(t, "", "", "", &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}})

	assert.Equal(t, "v0.3.1", GetVersion())
	assert.Equal(t, "unknown", GetGitCommit())
	assert.Equal(t, "v0.3.1", GetShortVersion())
	assert.NotContains(t, GetDetailedVersion(), "Commit:")
}
