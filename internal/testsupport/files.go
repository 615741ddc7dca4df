package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes a stand-in source file of size bytes at path, creating
// parent directories. The content repeats the file's base name, so files
// with different names have different checksums. A size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	pattern := []byte(filepath.Base(path))
	data := make([]byte, size)
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}
	writeBytes(t, path, data)
}

// CopyFile duplicates src to dst byte for byte. The copy gets a fresh mtime.
func CopyFile(t testing.TB, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read %s: %v", src, err)
	}
	writeBytes(t, dst, data)
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
