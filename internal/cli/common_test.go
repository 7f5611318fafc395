package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "orizon-rc", false)
	if !strings.HasPrefix(buf.String(), "orizon-rc v"+Version) {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	PrintVersion(&buf, "orizon-rc", true)
	var out struct {
		Tool        string      `json:"tool"`
		VersionInfo VersionInfo `json:"version_info"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Tool != "orizon-rc" || out.VersionInfo.Version != Version {
		t.Fatalf("unexpected: %+v", out)
	}
}

func TestLogVerbosity(t *testing.T) {
	if LogVerbosity(false, false) != 0 || LogVerbosity(true, false) != 1 || LogVerbosity(true, true) != 2 {
		t.Fatal("unexpected verbosity mapping")
	}
}
