package geneinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeMyGene answers /v3/query the way the public service does: one object
// per query, notfound for unknown symbols, genomic_pos as object or list.
type queryLog struct {
	mu      sync.Mutex
	symbols []string
}

func (l *queryLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.symbols = append(l.symbols, s)
}

func (l *queryLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.symbols...)
}

func fakeMyGene(t *testing.T, calls *atomic.Int32, queried *queryLog) *httptest.Server {
	t.Helper()
	known := map[string]any{
		"METTL3": map[string]any{"chr": "14", "start": 21498133, "end": 21511401, "strand": -1},
		"FTO":    map[string]any{"chr": "16", "start": 53701692, "end": 54158512, "strand": 1},
		"YTHDF2": []any{
			map[string]any{"chr": "HSCHR1_CTG1", "start": 5, "end": 6, "strand": 1},
			map[string]any{"chr": "1", "start": 28736990, "end": 28773122, "strand": 1},
		},
		"RBMX": map[string]any{"chr": "X", "start": 136869070, "end": 136880764, "strand": -1},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/v3/query" {
			http.Error(w, "bad route", http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("scopes") != "symbol" || r.Form.Get("species") != "human" {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		var out []map[string]any
		for _, q := range strings.Split(r.Form.Get("q"), ",") {
			if queried != nil {
				queried.add(q)
			}
			pos, ok := known[q]
			if !ok {
				out = append(out, map[string]any{"query": q, "notfound": true})
				continue
			}
			out = append(out, map[string]any{"query": q, "symbol": q, "name": q + " protein", "genomic_pos": pos})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestClientLookup(t *testing.T) {
	var calls atomic.Int32
	srv := fakeMyGene(t, &calls, nil)
	defer srv.Close()

	c := NewClient(srv.URL, WithBatchSize(2))
	got, err := c.Lookup(context.Background(), []string{"METTL3", "FTO", "YTHDF2", "NOPE", "METTL3"})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load(), "four unique symbols in batches of two")
	require.Len(t, got, 3)
	require.Equal(t, "14", got["METTL3"].Chromosome)
	require.Equal(t, "1", got["YTHDF2"].Chromosome, "canonical chromosome preferred over patch contig")
	require.Equal(t, "chr16:53701692-54158512", got["FTO"].Location())
	_, ok := got["NOPE"]
	require.False(t, ok)

	name, ok := got.Lookup("FTO", FieldName)
	require.True(t, ok)
	require.Equal(t, "FTO protein", name)
	_, ok = got.Lookup("NOPE", FieldChromosome)
	require.False(t, ok)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL).Lookup(context.Background(), []string{"FTO"})
	require.ErrorContains(t, err, "429")
}

func TestGenomeOrder(t *testing.T) {
	ann := Annotations{
		"FTO":    {Symbol: "FTO", Chromosome: "16", Start: 53701692},
		"METTL3": {Symbol: "METTL3", Chromosome: "14", Start: 21498133},
		"RBMX":   {Symbol: "RBMX", Chromosome: "X", Start: 136869070},
		"YTHDF2": {Symbol: "YTHDF2", Chromosome: "1", Start: 28736990},
		"YTHDC1": {Symbol: "YTHDC1", Chromosome: "4", Start: 68310000},
		"NAME":   {Symbol: "NAME"},
	}
	keys := []string{"RBMX", "FTO", "UNKNOWN", "METTL3", "YTHDF2", "NAME", "YTHDC1"}
	order := GenomeOrder(keys, ann)
	var got []string
	for _, i := range order {
		got = append(got, keys[i])
	}
	require.Equal(t, []string{"YTHDF2", "YTHDC1", "METTL3", "FTO", "RBMX"}, got)
	require.Equal(t, 25, ChromosomeRank("chrM"))
	require.Equal(t, 26, ChromosomeRank("Un"))
}

func TestCachedLookupAvoidsRepeatRoundTrips(t *testing.T) {
	var calls atomic.Int32
	queried := &queryLog{}
	srv := fakeMyGene(t, &calls, queried)
	defer srv.Close()

	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache", "genes.db"), 0)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	cached := NewCached(NewClient(srv.URL), cache, nil)
	first, err := cached.Lookup(context.Background(), []string{"METTL3", "NOPE"})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, int32(1), calls.Load())

	second, err := cached.Lookup(context.Background(), []string{"METTL3", "NOPE", "RBMX"})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, []string{"METTL3", "NOPE", "RBMX"}, queried.all(), "only the new symbol goes upstream")
	require.Equal(t, first["METTL3"], second["METTL3"])

	_, err = cached.Lookup(context.Background(), []string{"RBMX", "METTL3", " "})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestCacheExpiry(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "genes.db"), time.Hour)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(context.Background(), []string{"FTO"}, Annotations{"FTO": {Symbol: "FTO", Chromosome: "16"}}))
	found, missing, err := cache.Get(context.Background(), []string{"FTO"})
	require.NoError(t, err)
	require.Empty(t, missing)
	require.Equal(t, "16", found["FTO"].Chromosome)

	now = now.Add(2 * time.Hour)
	_, missing, err = cache.Get(context.Background(), []string{"FTO"})
	require.NoError(t, err)
	require.Equal(t, []string{"FTO"}, missing)
}
