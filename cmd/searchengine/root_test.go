package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	return cmd.ExecuteContext(context.Background())
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func setup(t *testing.T) (dir, corpus, queries string) {
	t.Helper()
	t.Setenv("SP_LOGGING_LEVEL", "error")
	dir = t.TempDir()
	corpus = filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "a.txt"),
		[]byte("The dog was running\nover the hill\nthen run home"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "b.txt"),
		[]byte("Dogs run; cats sleep."), 0o644))
	queries = filepath.Join(dir, "queries.txt")
	require.NoError(t, os.WriteFile(queries, []byte("running\ndog cat\n\nru\n"), 0o644))
	return dir, corpus, queries
}

func TestSequentialRunWritesSnapshots(t *testing.T) {
	dir, corpus, queries := setup(t)
	indexPath := filepath.Join(dir, "index.json")
	countsPath := filepath.Join(dir, "counts.json")
	resultsPath := filepath.Join(dir, "results.json")

	require.NoError(t, execute(t,
		"--path", corpus,
		"--query", queries,
		"--exact",
		"--index="+indexPath,
		"--counts="+countsPath,
		"--results="+resultsPath,
	))

	var postings map[string]map[string][]int
	readJSON(t, indexPath, &postings)
	assert.Equal(t, []int{4, 9}, postings["run"][filepath.Join(corpus, "a.txt")])

	var counts map[string]int
	readJSON(t, countsPath, &counts)
	assert.Equal(t, map[string]int{
		filepath.Join(corpus, "a.txt"): 10,
		filepath.Join(corpus, "b.txt"): 4,
	}, counts)

	var results map[string][]struct {
		Where string  `json:"where"`
		Count int     `json:"count"`
		Score float64 `json:"score"`
	}
	readJSON(t, resultsPath, &results)
	assert.Len(t, results, 3)
	require.Len(t, results["run"], 2)
	assert.Equal(t, filepath.Join(corpus, "b.txt"), results["run"][0].Where)
	assert.Empty(t, results["ru"], "exact mode does not expand prefixes")
	assert.Len(t, results["cat dog"], 2)
}

func TestConcurrentRunMatchesSequential(t *testing.T) {
	dir, corpus, queries := setup(t)
	seqDir := filepath.Join(dir, "seq")
	parDir := filepath.Join(dir, "par")
	require.NoError(t, os.MkdirAll(seqDir, 0o755))
	require.NoError(t, os.MkdirAll(parDir, 0o755))

	require.NoError(t, execute(t, "--path", corpus, "--query", queries,
		"--index="+filepath.Join(seqDir, "index.json"),
		"--counts="+filepath.Join(seqDir, "counts.json"),
		"--results="+filepath.Join(seqDir, "results.json"),
	))
	require.NoError(t, execute(t, "--path", corpus, "--query", queries, "--threads", "3",
		"--index="+filepath.Join(parDir, "index.json"),
		"--counts="+filepath.Join(parDir, "counts.json"),
		"--results="+filepath.Join(parDir, "results.json"),
	))

	for _, name := range []string{"index.json", "counts.json", "results.json"} {
		seq, err := os.ReadFile(filepath.Join(seqDir, name))
		require.NoError(t, err)
		par, err := os.ReadFile(filepath.Join(parDir, name))
		require.NoError(t, err)
		assert.Equal(t, string(seq), string(par), name)
	}
}

func TestInvalidThreadsFallBackToDefault(t *testing.T) {
	dir, corpus, _ := setup(t)
	counts := filepath.Join(dir, "counts.json")
	require.NoError(t, execute(t, "--path", corpus, "--threads=-4", "--counts="+counts))

	var got map[string]int
	readJSON(t, counts, &got)
	assert.Len(t, got, 2)
}

func TestCrawlRun(t *testing.T) {
	t.Setenv("SP_LOGGING_LEVEL", "error")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<p>page %s</p><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>`, r.URL.Path)
	}))
	defer srv.Close()

	counts := filepath.Join(t.TempDir(), "counts.json")
	require.NoError(t, execute(t, "--url", srv.URL+"/", "--limit", "3", "--threads", "1", "--counts="+counts))

	var got map[string]int
	readJSON(t, counts, &got)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), hits.Load())
}

func TestBadConfigFails(t *testing.T) {
	assert.Error(t, execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, execute(t, "unexpected-positional"))
}

func TestLogPhaseErrorSeparatesCancellation(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	logPhaseError(log, "crawl failed", fmt.Errorf("waiting for crawl: %w", context.Canceled), "url", "http://x/")
	logPhaseError(log, "crawl failed", fmt.Errorf("fetching seed: %w", os.ErrNotExist), "url", "http://x/")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "WARN", first["level"])
	assert.Equal(t, "run interrupted", first["msg"])
	assert.Equal(t, "http://x/", first["url"])
	assert.Equal(t, "ERROR", second["level"])
	assert.Equal(t, "crawl failed", second["msg"])
}
