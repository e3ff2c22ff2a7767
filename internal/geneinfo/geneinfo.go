// Package geneinfo resolves gene symbols to names and genomic positions
// through a MyGene-style query service, with an SQLite cache in front.
package geneinfo

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Annotation fields exposed by Annotations.Lookup.
const (
	FieldName       = "name"
	FieldChromosome = "chromosome"
	FieldLocation   = "location"
)

// Annotation is the genomic placement of one gene.
type Annotation struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Chromosome string `json:"chromosome"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Strand     int    `json:"strand"`
}

// Placed reports whether the annotation carries a genomic position.
func (a Annotation) Placed() bool { return a.Chromosome != "" }

// Location renders chr:start-end.
func (a Annotation) Location() string {
	if !a.Placed() {
		return ""
	}
	return "chr" + a.Chromosome + ":" + strconv.FormatInt(a.Start, 10) + "-" + strconv.FormatInt(a.End, 10)
}

// Lookuper resolves symbols. Symbols without a match are absent from the
// result; that is not an error.
type Lookuper interface {
	Lookup(ctx context.Context, symbols []string) (Annotations, error)
}

// Annotations maps symbol to annotation.
type Annotations map[string]Annotation

// Lookup lets annotations act as an annotation source keyed by symbol.
func (a Annotations) Lookup(key, field string) (string, bool) {
	ann, ok := a[key]
	if !ok {
		return "", false
	}
	var v string
	switch field {
	case FieldName:
		v = ann.Name
	case FieldChromosome:
		v = ann.Chromosome
	case FieldLocation:
		v = ann.Location()
	}
	return v, v != ""
}

// ChromosomeRank orders 1..22, X, Y, MT, then anything else.
func ChromosomeRank(chr string) int {
	c := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(chr)), "CHR")
	if n, err := strconv.Atoi(c); err == nil && n >= 1 && n <= 22 {
		return n
	}
	switch c {
	case "X":
		return 23
	case "Y":
		return 24
	case "M", "MT":
		return 25
	}
	return 26
}

// GenomeOrder returns the indices of keys sorted by chromosome then start.
// Keys without a genomic position are left out.
func GenomeOrder(keys []string, ann Annotations) []int {
	var out []int
	for i, k := range keys {
		if a, ok := ann[k]; ok && a.Placed() {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := ann[keys[out[i]]], ann[keys[out[j]]]
		ra, rb := ChromosomeRank(a.Chromosome), ChromosomeRank(b.Chromosome)
		if ra != rb {
			return ra < rb
		}
		if ra == 26 && a.Chromosome != b.Chromosome {
			return a.Chromosome < b.Chromosome
		}
		return a.Start < b.Start
	})
	return out
}
