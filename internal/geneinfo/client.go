package geneinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DefaultBaseURL is the public MyGene.info service.
const DefaultBaseURL = "https://mygene.info"

// Client queries POST /v3/query in batches.
type Client struct {
	base    string
	species string
	batch   int
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

// WithBatchSize caps the symbols sent per request.
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batch = n
		}
	}
}

// WithSpecies overrides the species filter.
func WithSpecies(s string) ClientOption { return func(c *Client) { c.species = s } }

// NewClient returns a client for baseURL, DefaultBaseURL when empty.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		species: "human",
		batch:   1000,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type hit struct {
	Query      string          `json:"query"`
	NotFound   bool            `json:"notfound"`
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	GenomicPos json.RawMessage `json:"genomic_pos"`
}

type genomicPos struct {
	Chr    string `json:"chr"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Strand int    `json:"strand"`
}

// Lookup resolves symbols. The first hit placed on a canonical chromosome
// wins; unmatched symbols are absent.
func (c *Client) Lookup(ctx context.Context, symbols []string) (Annotations, error) {
	out := make(Annotations)
	for _, chunk := range lo.Chunk(lo.Uniq(symbols), c.batch) {
		hits, err := c.query(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if h.NotFound || h.Query == "" {
				continue
			}
			a, err := h.annotation()
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", h.Query, err)
			}
			prev, seen := out[h.Query]
			if !seen || (!prev.Placed() && a.Placed()) || (ChromosomeRank(prev.Chromosome) == 26 && ChromosomeRank(a.Chromosome) < 26) {
				out[h.Query] = a
			}
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, symbols []string) ([]hit, error) {
	form := url.Values{
		"q":       {strings.Join(symbols, ",")},
		"scopes":  {"symbol"},
		"fields":  {"symbol,name,genomic_pos"},
		"species": {c.species},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v3/query", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gene query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gene query: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var hits []hit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("gene query: decode: %w", err)
	}
	return hits, nil
}

// annotation picks the best genomic position; genomic_pos is an object or
// an array of objects.
func (h hit) annotation() (Annotation, error) {
	a := Annotation{Symbol: h.Query, Name: h.Name}
	raw := strings.TrimSpace(string(h.GenomicPos))
	if raw == "" || raw == "null" {
		return a, nil
	}
	var positions []genomicPos
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal(h.GenomicPos, &positions); err != nil {
			return a, err
		}
	} else {
		var p genomicPos
		if err := json.Unmarshal(h.GenomicPos, &p); err != nil {
			return a, err
		}
		positions = []genomicPos{p}
	}
	best := -1
	for i, p := range positions {
		if p.Chr == "" {
			continue
		}
		if best < 0 || (ChromosomeRank(positions[best].Chr) == 26 && ChromosomeRank(p.Chr) < 26) {
			best = i
		}
	}
	if best >= 0 {
		p := positions[best]
		a.Chromosome, a.Start, a.End, a.Strand = p.Chr, p.Start, p.End, p.Strand
	}
	return a, nil
}
