package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"omicsreport/internal/blob"
	"omicsreport/internal/ledger"
)

// Artifact kinds.
const (
	KindFigure   = "figure"
	KindTable    = "table"
	KindWorkbook = "workbook"
	KindMetrics  = "metrics"
	KindIndex    = "index"
)

// File is one artifact ready for upload.
type File struct {
	Name        string
	Kind        string
	Section     string
	ContentType string
	Payload     []byte
}

// ArtifactObserver is told about every stored artifact.
type ArtifactObserver interface {
	ArtifactStored(kind string, size int64)
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPrefix sets the key prefix; runs land under <prefix>/<run-id>/.
func WithPrefix(p string) PublisherOption { return func(pb *Publisher) { pb.prefix = p } }

// WithParallelism bounds concurrent uploads within one Publish call.
func WithParallelism(n int) PublisherOption {
	return func(pb *Publisher) {
		if n > 0 {
			pb.parallelism = n
		}
	}
}

// WithURLExpiry sets the lifetime of presigned artifact URLs.
func WithURLExpiry(d time.Duration) PublisherOption { return func(pb *Publisher) { pb.expiry = d } }

// WithArtifactObserver registers an observer, typically the run metrics.
func WithArtifactObserver(o ArtifactObserver) PublisherOption {
	return func(pb *Publisher) { pb.obs = o }
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l *zap.Logger) PublisherOption { return func(pb *Publisher) { pb.log = l } }

// Publisher uploads run artifacts to the artifact store. Keys are
// create-only, so a run never overwrites another run's output.
type Publisher struct {
	store       blob.Store
	prefix      string
	parallelism int
	expiry      time.Duration
	obs         ArtifactObserver
	log         *zap.Logger
}

// NewPublisher returns a publisher writing to store.
func NewPublisher(store blob.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, prefix: "runs", parallelism: 4, expiry: 7 * 24 * time.Hour}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Key returns the store key of an artifact of a run.
func (p *Publisher) Key(runID, name string) string {
	return path.Join(p.prefix, runID, name)
}

// Publish uploads files in parallel and returns their ledger entries in
// input order. The first failure cancels the remaining uploads.
func (p *Publisher) Publish(ctx context.Context, runID string, files []File) ([]ledger.Artifact, error) {
	out := make([]ledger.Artifact, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, f := range files {
		g.Go(func() error {
			a, err := p.put(gctx, runID, f)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Publisher) put(ctx context.Context, runID string, f File) (ledger.Artifact, error) {
	key := p.Key(runID, f.Name)
	info, err := p.store.Put(ctx, key, bytes.NewReader(f.Payload), blob.PutOptions{
		ContentType: f.ContentType,
		Metadata:    map[string]string{"run": runID, "kind": f.Kind, "section": f.Section},
	})
	if err != nil {
		return ledger.Artifact{}, fmt.Errorf("publish %s: %w", key, err)
	}
	url, err := p.store.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: p.expiry})
	if err != nil && !errors.Is(err, blob.ErrUnsupported) {
		return ledger.Artifact{}, fmt.Errorf("presign %s: %w", key, err)
	}
	if p.obs != nil {
		p.obs.ArtifactStored(f.Kind, info.Size)
	}
	p.log.Debug("artifact stored", zap.String("key", key), zap.String("kind", f.Kind), zap.Int64("bytes", info.Size))
	return ledger.Artifact{
		Key:         key,
		Kind:        f.Kind,
		Section:     f.Section,
		ContentType: f.ContentType,
		SizeBytes:   info.Size,
		URL:         url,
	}, nil
}

// Discard deletes every object stored under a run's prefix and returns how
// many were removed. Deletion continues past individual failures.
func (p *Publisher) Discard(ctx context.Context, runID string) (int, error) {
	infos, err := p.store.List(ctx, p.Key(runID, "")+"/")
	if err != nil {
		return 0, fmt.Errorf("list run %s: %w", runID, err)
	}
	var errs []error
	removed := 0
	for _, info := range infos {
		ok, err := p.store.Delete(ctx, info.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", info.Key, err))
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		p.log.Debug("run artifacts discarded", zap.String("run", runID), zap.Int("objects", removed))
	}
	return removed, errors.Join(errs...)
}
