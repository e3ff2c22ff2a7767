// Package dataset loads the omics tables and the cell-line metadata a
// report is built from. Tables are handed out as leases: a section
// acquires the tables it needs, works on them and releases them before the
// next section starts, so no table outlives the section that loaded it.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"omicsreport/internal/blob"
	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

// ErrTableUnavailable is returned when a table id is not configured or its
// file cannot be found.
var ErrTableUnavailable = errors.New("dataset: table unavailable")

// Provider supplies tables and metadata.
type Provider interface {
	Acquire(ctx context.Context, tableID string) (*Lease, error)
	Metadata(ctx context.Context) (*samples.Index, error)
}

// Lease owns one loaded table until Release.
type Lease struct {
	id    string
	mu    sync.Mutex
	table *table.Table
}

// NewLease wraps an already loaded table.
func NewLease(id string, t *table.Table) *Lease { return &Lease{id: id, table: t} }

// ID returns the table id.
func (l *Lease) ID() string { return l.id }

// Table returns the leased table, nil after Release.
func (l *Lease) Table() *table.Table {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table
}

// Release drops the table. Safe to call more than once and on nil.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table.Release()
	l.table = nil
}

// LoadObserver is told about every table loaded.
type LoadObserver interface {
	TableLoaded(tableID string, rows int, elapsed time.Duration)
}

// Option configures a BlobProvider.
type Option func(*BlobProvider)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *BlobProvider) { p.log = l } }

// WithObserver registers a load observer, typically the run metrics.
func WithObserver(o LoadObserver) Option { return func(p *BlobProvider) { p.obs = o } }

// BlobProvider reads table files from a blob store.
type BlobProvider struct {
	store    blob.Store
	specs    map[string]TableSpec
	metadata string
	log      *zap.Logger
	obs      LoadObserver
}

// NewBlobProvider validates specs and returns a provider. Exactly one spec
// may use the metadata layout.
func NewBlobProvider(store blob.Store, specs []TableSpec, opts ...Option) (*BlobProvider, error) {
	p := &BlobProvider{store: store, specs: make(map[string]TableSpec, len(specs)), log: zap.NewNop()}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.specs[s.ID]; dup {
			return nil, fmt.Errorf("table %s configured twice", s.ID)
		}
		if s.Layout == LayoutMetadata {
			if p.metadata != "" {
				return nil, fmt.Errorf("tables %s and %s both use the metadata layout", p.metadata, s.ID)
			}
			p.metadata = s.ID
		}
		p.specs[s.ID] = s
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p, nil
}

// Acquire loads a value or event table.
func (p *BlobProvider) Acquire(ctx context.Context, tableID string) (*Lease, error) {
	spec, ok := p.specs[tableID]
	if !ok {
		return nil, fmt.Errorf("table %s: not configured: %w", tableID, ErrTableUnavailable)
	}
	if spec.Layout == LayoutMetadata {
		return nil, fmt.Errorf("table %s is metadata; use Metadata", tableID)
	}
	start := time.Now()
	var t *table.Table
	err := p.read(ctx, spec, func(cr *csv.Reader) error {
		var err error
		if spec.Layout == LayoutWide {
			t, err = parseWide(spec, cr)
		} else {
			t, err = parseLong(spec, cr)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	p.log.Info("table loaded",
		zap.String("table", tableID),
		zap.String("key", spec.Key),
		zap.Int("rows", t.Len()),
		zap.Duration("elapsed", elapsed))
	if p.obs != nil {
		p.obs.TableLoaded(tableID, t.Len(), elapsed)
	}
	return NewLease(tableID, t), nil
}

// Metadata loads the metadata table.
func (p *BlobProvider) Metadata(ctx context.Context) (*samples.Index, error) {
	if p.metadata == "" {
		return nil, fmt.Errorf("metadata: no table uses the metadata layout: %w", ErrTableUnavailable)
	}
	spec := p.specs[p.metadata]
	var idx *samples.Index
	err := p.read(ctx, spec, func(cr *csv.Reader) error {
		var err error
		idx, err = parseMetadata(spec, cr)
		return err
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("metadata loaded", zap.String("table", spec.ID), zap.Int("samples", idx.Len()))
	if p.obs != nil {
		p.obs.TableLoaded(spec.ID, idx.Len(), 0)
	}
	return idx, nil
}

// Tables returns the configured table ids.
func (p *BlobProvider) Tables() []string {
	out := make([]string, 0, len(p.specs))
	for id := range p.specs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *BlobProvider) read(ctx context.Context, spec TableSpec, fn func(*csv.Reader) error) error {
	_, rc, err := p.store.Get(ctx, spec.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("table %s (%s): %w", spec.ID, spec.Key, ErrTableUnavailable)
	}
	if err != nil {
		return fmt.Errorf("table %s (%s): %w: %w", spec.ID, spec.Key, ErrTableUnavailable, err)
	}
	defer func() { _ = rc.Close() }()
	cr, closer, err := newReader(spec.Key, rc)
	if err != nil {
		return fmt.Errorf("table %s: %w", spec.ID, err)
	}
	defer func() { _ = closer.Close() }()
	if err := fn(cr); err != nil {
		return fmt.Errorf("table %s: %w", spec.ID, err)
	}
	return nil
}
