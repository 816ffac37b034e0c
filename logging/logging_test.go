package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		quiet     bool
		wantDebug bool
		wantInfo  bool
	}{
		{"default", false, false, false, true},
		{"verbose", true, false, true, true},
		{"quiet", false, true, false, false},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := New(&buf, tt.verbose, tt.quiet)
		logger.Debug("debug line")
		logger.Info("info line")
		logger.Warn("warn line")

		out := buf.String()
		if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
			t.Errorf("%s: debug logged = %v, want %v", tt.name, got, tt.wantDebug)
		}
		if got := strings.Contains(out, "info line"); got != tt.wantInfo {
			t.Errorf("%s: info logged = %v, want %v", tt.name, got, tt.wantInfo)
		}
		if !strings.Contains(out, "warn line") {
			t.Errorf("%s: warning not logged", tt.name)
		}
	}
}
