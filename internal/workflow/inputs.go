package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gifwright/internal/disposition"
)

// CollectInputs expands args into absolute video paths. Directories are
// walked recursively for known video extensions; files are taken as given.
// The result is sorted and free of duplicates.
func CollectInputs(args []string) ([]string, error) {
	return collect(args, disposition.IsVideo)
}

// CollectArtifacts is CollectInputs for GIF artifacts.
func CollectArtifacts(args []string) ([]string, error) {
	return collect(args, isArtifact)
}

func collect(args []string, match func(string) bool) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, ok := seen[abs]; !ok {
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
		return nil
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", arg, err)
		}
		if !info.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !match(path) {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", arg, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Partial outputs are still being written by a transcoder.
func isArtifact(path string) bool {
	name := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(name), ".gif") && !strings.Contains(name, ".partial.")
}

// listGIFs returns the artifacts directly inside dir.
func listGIFs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && isArtifact(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

// OutputArtifacts lists the GIFs currently in the output directory.
func (r *Runner) OutputArtifacts() []string {
	return listGIFs(r.cfg.Paths.OutputDir)
}
