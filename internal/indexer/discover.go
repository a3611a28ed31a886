package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExtensions are the suffixes treated as text sources.
var DefaultExtensions = []string{".txt", ".text"}

// FindTextFiles returns the text sources under root using DefaultExtensions.
func FindTextFiles(root string) ([]string, error) {
	return FindFiles(root, DefaultExtensions)
}

// FindFiles walks root and returns, sorted, every regular file whose name
// ends with one of exts (case-insensitive). A root that is itself a file is
// returned as-is whatever its extension.
func FindFiles(root string, exts []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && hasExtension(d.Name(), exts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
