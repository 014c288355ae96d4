// Package scanner enumerates Cairo source files under a set of roots and
// derives a module path for each from its location relative to the nearest
// src/ ancestor.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File is one discovered source file.
type File struct {
	Path       string // as walked, slash-normalized
	AbsPath    string
	ModulePath string // ::-separated; empty for a crate-root lib/mod file
	Root       string
}

// Scan walks the roots in order and returns every *.cairo file, deduplicated
// by absolute path (first occurrence wins across roots). Warnings record
// module-path collisions between distinct files, which happens when roots
// overlap. An unreadable root fails the scan.
func Scan(roots []string, excludeTests bool) ([]File, []string, error) {
	var files []File
	var warnings []string
	seen := make(map[string]bool)
	byModule := make(map[string]string)

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, fmt.Errorf("reading input path %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, nil, fmt.Errorf("not a directory: %s", root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || filepath.Ext(d.Name()) != ".cairo" {
				return nil
			}
			if excludeTests && isTestFile(path) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			if seen[abs] {
				return nil
			}
			seen[abs] = true
			mp := ModulePath(path, root)
			if prev, ok := byModule[mp]; ok && mp != "" && prev != abs {
				warnings = append(warnings, fmt.Sprintf("module path %s maps to both %s and %s; first wins", mp, prev, abs))
			} else if mp != "" {
				byModule[mp] = abs
			}
			files = append(files, File{
				Path:       filepath.ToSlash(path),
				AbsPath:    abs,
				ModulePath: mp,
				Root:       root,
			})
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return files, warnings, nil
}

// isTestFile applies the exclusion rules: test_*.cairo, *_test.cairo,
// tests.cairo, or any path segment equal to test/tests.
func isTestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.cairo") || base == "tests.cairo" {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if seg == "tests" || seg == "test" {
			return true
		}
	}
	return false
}

// ModulePath derives the ::-separated module path for a file. The path is
// taken relative to the deepest src directory on the file's directory chain,
// or relative to the supplied root when no src exists. lib.cairo and
// mod.cairo collapse to their parent directory's path.
func ModulePath(path, root string) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	segs := strings.Split(dir, "/")

	rel := ""
	srcIdx := -1
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "src" {
			srcIdx = i
			break
		}
	}
	if srcIdx >= 0 {
		rel = strings.Join(segs[srcIdx+1:], "/")
	} else {
		r, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil || r == "." {
			rel = ""
		} else {
			rel = filepath.ToSlash(r)
		}
	}

	var parts []string
	if rel != "" {
		parts = strings.Split(rel, "/")
	}
	stem := strings.TrimSuffix(filepath.Base(path), ".cairo")
	if stem != "lib" && stem != "mod" {
		parts = append(parts, stem)
	}
	return strings.Join(parts, "::")
}
