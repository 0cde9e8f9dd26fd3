package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/dl-alexandre/ecmdocs", Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "3f9c2a71b0d84e6f5a1c"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			name: "unset ldflags take build info",
			in:   Info{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"},
			want: Info{Version: "v1.4.0", GitCommit: "3f9c2a71b0d8", BuildTime: "2026-10-01T12:00:00Z", Modified: true},
		},
		{
			name: "ldflags win",
			in:   Info{Version: "1.5.0", GitCommit: "abc1234", BuildTime: "2026-10-02"},
			want: Info{Version: "1.5.0", GitCommit: "abc1234", BuildTime: "2026-10-02", Modified: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.in
			fillFromBuildInfo(&info, bi)
			if info != tt.want {
				t.Errorf("got %+v, want %+v", info, tt.want)
			}
		})
	}
}

func TestFillFromBuildInfo_DevelBuild(t *testing.T) {
	info := Info{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"}
	fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "dev" || info.GitCommit != "unknown" {
		t.Errorf("got %+v", info)
	}
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "1.0.0", GitCommit: "abc", BuildTime: "today"}, "ecmdocs 1.0.0 (abc) built today"},
		{Info{Version: "1.0.0", GitCommit: "abc", BuildTime: "today", Modified: true}, "ecmdocs 1.0.0 (abc-dirty) built today"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
