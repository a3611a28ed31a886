// Package output writes index snapshots as pretty-printed JSON files. Object
// keys are emitted in lexicographic order at every level.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cgportillo/project-cpxrtillo/internal/index"
)

// WriteIndex writes term to location to positions.
func WriteIndex(path string, postings map[string]map[string][]int) error {
	if postings == nil {
		postings = map[string]map[string][]int{}
	}
	return writeJSON(path, postings)
}

// WriteCounts writes location to word total.
func WriteCounts(path string, counts map[string]int) error {
	if counts == nil {
		counts = map[string]int{}
	}
	return writeJSON(path, counts)
}

// WriteResults writes normalized query to ranked results. Scores carry eight
// decimals.
func WriteResults(path string, results map[string][]index.Result) error {
	out := make(map[string][]index.Result, len(results))
	for q, rs := range results {
		if rs == nil {
			rs = []index.Result{}
		}
		out[q] = rs
	}
	return writeJSON(path, out)
}

// writeJSON encodes v to a temporary file beside path and renames it into
// place, so readers never observe a partial file.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
