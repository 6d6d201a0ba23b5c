package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withVersion(t *testing.T, version, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestReleaseBuild(t *testing.T) {
	withVersion(t, "v1.4.0", "0123456789abcdef", "2026-03-01T10:00:00Z")

	assert.Equal(t, "v1.4.0", GetVersion())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Contains(t, info.Platform, "/")

	detailed := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(detailed, "Version: v1.4.0"))
	assert.Contains(t, detailed, "Built: 2026-03-01T10:00:00Z")
}

func TestDevBuildWithCommit(t *testing.T) {
	withVersion(t, "dev", "abcdef0123", "unknown")

	v := GetVersion()
	assert.True(t, v == "dev" || strings.HasPrefix(v, "dev-") || strings.HasPrefix(v, "v"))
	if v == "dev" {
		assert.Equal(t, "dev-abcdef0", GetShortVersion())
		assert.False(t, IsRelease())
	}
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.Equal(t, 2026, parseBuildTime("2026-01-02 03:04:05").Year())
}
