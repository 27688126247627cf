package version

import (
	"runtime"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("Platform = %q, want %q", info.Platform, want)
	}
	if Dirty == "false" && info.Dirty {
		t.Error("Dirty should be false for a clean build")
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "2.1.0", Commit: "deadbeef", Date: "2026-06-01T00:00:00Z"}

	if got, want := info.String(), "2.1.0 (deadbeef) built 2026-06-01T00:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	info.Dirty = true
	if got, want := info.String(), "2.1.0 (deadbeef-dirty) built 2026-06-01T00:00:00Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestInfo_Short(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "1.2.3"}, "1.2.3"},
		{Info{Version: "1.2.3", Dirty: true}, "1.2.3-dirty"},
		{Info{Version: "0.0.0-dev"}, "0.0.0-dev"},
	}

	for _, tt := range tests {
		if got := tt.info.Short(); got != tt.want {
			t.Errorf("Short() = %q, want %q", got, tt.want)
		}
	}
}
