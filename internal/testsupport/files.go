package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleSRT is a short dialogue fixture used across analysis tests.
const SampleSRT = `1
00:00:01,000 --> 00:00:04,000
Get out of the car, now!

2
00:00:05,500 --> 00:00:08,000
I can't give up. We have to find the money.

3
00:06:10,000 --> 00:06:12,500
She looked up the address in 1994.
`

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
