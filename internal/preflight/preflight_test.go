package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gifwright/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckReadable("test", f); result.Passed {
		t.Fatal("expected readable check to reject a file")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_StubbedConfigPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunAll(context.Background(), cfg)
	// output, cache, work, one source dir, ffprobe, ffmpeg
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
	if err := Error(results); err != nil {
		t.Fatalf("Error() = %v, want nil", err)
	}
}

func TestRunAll_QuarantineChecksRecoveryDir(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(), testsupport.WithDispositionMode("quarantine"))
	cfg.Paths.RecoveryDir = filepath.Join(t.TempDir(), "missing")

	results := RunAll(context.Background(), cfg)
	failed := Failures(results)
	if len(failed) != 1 || failed[0].Name != "Recovery directory" {
		t.Fatalf("failures = %+v, want only the recovery directory", failed)
	}
	err := Error(results)
	if err == nil || !strings.Contains(err.Error(), "Recovery directory") {
		t.Fatalf("Error() = %v", err)
	}
}

func TestRunAll_MissingBinaryFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcode.FFmpegBinary = "clearly-not-present-ffmpeg"

	var found bool
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "FFmpeg" {
			found = true
			if r.Passed {
				t.Fatalf("expected FFmpeg check to fail")
			}
		}
	}
	if !found {
		t.Fatal("expected FFmpeg check in results")
	}
}
