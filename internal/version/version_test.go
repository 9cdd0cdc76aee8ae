package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, commit, date string) {
	t.Helper()
	origV, origC, origD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origV, origC, origD })
	Version, Commit, Date = v, commit, date
}

func TestGetInfo(t *testing.T) {
	withBuild(t, "1.2.0", "abc123def456789", "2026-01-15T10:30:00Z")

	info := GetInfo()
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "abc123def456789", info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	withBuild(t, "1.2.0", "abc123def456789", "2026-01-15T10:30:00Z")

	s := String()
	assert.Contains(t, s, "proofreel version 1.2.0")
	assert.Contains(t, s, "commit: abc123de")
	assert.Contains(t, s, "built: 2026-01-15T10:30:00Z")
}

func TestShort(t *testing.T) {
	withBuild(t, "1.2.0", "abc123def456789", "unknown")
	assert.Equal(t, "1.2.0 (abc123de)", Short())

	Commit = "abc"
	assert.Equal(t, "1.2.0", Short())
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "0.4.1", "unknown", "unknown")
	assert.Equal(t, "proofreel/0.4.1", UserAgent())
}

func TestIsSnapshot(t *testing.T) {
	tests := []struct {
		version  string
		expected bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"1.0.1-SNAPSHOT.abc1234", true},
		{"1.2.3-alpha.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withBuild(t, tt.version, "unknown", "unknown")
			assert.Equal(t, tt.expected, IsSnapshot())
		})
	}
}

func TestInfoJSON(t *testing.T) {
	withBuild(t, "1.0.0", "abc123def456789", "2026-01-15T10:30:00Z")

	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"version", "commit", "date", "go_version", "platform"} {
		assert.Contains(t, decoded, key)
	}
}
