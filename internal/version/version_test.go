package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	prev := Version
	Version = "1.2.3"
	defer func() { Version = prev }()

	if got := String(); !strings.HasPrefix(got, "ratewatch 1.2.3\n") {
		t.Fatalf("unexpected version string %q", got)
	}
	if UserAgent() != "ratewatch/1.2.3" {
		t.Fatalf("unexpected user agent %q", UserAgent())
	}
}
