package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		commit    string
		buildTime string
		settings  []debug.BuildSetting
		want      BuildInfo
	}{
		{
			name: "nothing known",
			want: BuildInfo{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"},
		},
		{
			name: "vcs stamp",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "3f2a9c1d0e4b"},
				{Key: "vcs.time", Value: "2026-03-01T12:00:00Z"},
				{Key: "vcs.modified", Value: "true"},
			},
			want: BuildInfo{Version: "dev", GitCommit: "3f2a9c1", BuildTime: "2026-03-01T12:00:00Z", Modified: true},
		},
		{
			name:      "ldflags win over vcs stamp",
			commit:    "abc1234",
			buildTime: "2026-01-01T00:00:00Z",
			settings:  []debug.BuildSetting{{Key: "vcs.revision", Value: "3f2a9c1d0e4b"}},
			want:      BuildInfo{Version: "dev", GitCommit: "abc1234", BuildTime: "2026-01-01T00:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			GitCommit, BuildTime = tt.commit, tt.buildTime
			t.Cleanup(func() { GitCommit, BuildTime = "", "" })

			tt.want.GoVersion = runtime.Version()
			assert.Equal(t, tt.want, resolve(tt.settings))
		})
	}
}

func TestBuildInfo_Release(t *testing.T) {
	assert.Equal(t, "medgraph@1.2.0+3f2a9c1", BuildInfo{Version: "1.2.0", GitCommit: "3f2a9c1"}.Release())
	assert.Equal(t, "medgraph@dev", BuildInfo{Version: "dev", GitCommit: "unknown"}.Release())
}
