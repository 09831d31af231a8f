package version

import "testing"

func TestString(t *testing.T) {
	savedVersion, savedCommit := Version, Commit
	defer func() { Version, Commit = savedVersion, savedCommit }()

	tests := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"dev with commit", "dev", "1f2e3d4", "dev (1f2e3d4)"},
		{"dev no commit", "dev", "", "dev"},
		{"release ignores commit", "v0.4.0", "1f2e3d4", "v0.4.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit = tt.version, tt.commit
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
