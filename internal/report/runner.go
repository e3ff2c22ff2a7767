package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"omicsreport/internal/dataset"
	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/ledger"
	"omicsreport/internal/metrics"
	"omicsreport/internal/render"
	"omicsreport/internal/samples"
	"omicsreport/internal/workbook"
)

// Result describes a finished run.
type Result struct {
	Run      ledger.Run
	IndexKey string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.log = l } }

// WithGenes replaces the curated gene set.
func WithGenes(s *genes.Set) Option { return func(r *Runner) { r.genes = s } }

// WithGeneInfo enables gene annotation for genome ordering and the gene
// table.
func WithGeneInfo(l geneinfo.Lookuper) Option { return func(r *Runner) { r.geneInfo = l } }

// WithMetrics sets the run metrics recorder.
func WithMetrics(m *metrics.Recorder) Option { return func(r *Runner) { r.metrics = m } }

// WithLineage selects the cell lines every section looks at.
func WithLineage(pattern string, mode samples.MatchMode) Option {
	return func(r *Runner) { r.lineage, r.match = pattern, mode }
}

// WithFormat sets the figure encoding.
func WithFormat(f render.Format) Option { return func(r *Runner) { r.format = f } }

// WithLabels attaches labels to the ledger entry.
func WithLabels(l map[string]string) Option { return func(r *Runner) { r.labels = l } }

// Runner executes sections one after another. A Runner may be reused for
// several runs but not concurrently.
type Runner struct {
	provider  dataset.Provider
	publisher *Publisher
	ledger    ledger.Store
	genes     *genes.Set
	geneInfo  geneinfo.Lookuper
	metrics   *metrics.Recorder
	log       *zap.Logger
	lineage   string
	match     samples.MatchMode
	format    render.Format
	labels    map[string]string

	now   func() time.Time
	newID func() string
}

// NewRunner wires a runner.
func NewRunner(provider dataset.Provider, publisher *Publisher, runs ledger.Store, opts ...Option) *Runner {
	r := &Runner{
		provider:  provider,
		publisher: publisher,
		ledger:    runs,
		genes:     genes.Curated(),
		match:     samples.MatchExact,
		format:    render.PNG,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	return r
}

// runState is what the sections of one run share: the metadata, the
// sample predicate and the gene annotation. Tables are never shared.
type runState struct {
	id     string
	meta   *samples.Index
	keep   func(string) bool
	ann    geneinfo.Annotations
	book   *workbook.Workbook
	page   indexPage
	ledger *ledger.Run
}

// Run executes sections in order. Any section error fails the run: the
// ledger records the failure and no index is written, so a report is
// either complete or absent.
func (r *Runner) Run(ctx context.Context, sections []Section) (Result, error) {
	if len(sections) == 0 {
		return Result{}, errors.New("report: no sections selected")
	}
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			return Result{}, err
		}
	}
	started := r.now()
	run := ledger.Run{
		ID:        r.newID(),
		Status:    ledger.StatusRunning,
		Lineage:   r.lineage,
		Labels:    r.labels,
		StartedAt: started,
	}
	log := r.log.With(zap.String("run", run.ID))
	if err := r.ledger.Save(ctx, run); err != nil {
		return Result{}, fmt.Errorf("record run start: %w", err)
	}
	log.Info("run started", zap.Int("sections", len(sections)), zap.String("lineage", r.lineage))

	res, err := r.run(ctx, log, &run, sections)
	r.metrics.Observe(ctx, "run", err == nil, r.now().Sub(started))
	done := r.now()
	run.CompletedAt = &done
	if totals, terr := r.metrics.Totals(); terr == nil {
		run.Metrics = totals
	} else {
		log.Warn("run metrics unavailable", zap.Error(terr))
	}
	if err != nil {
		run.Status = ledger.StatusFailed
		run.Error = err.Error()
		log.Error("run failed", zap.Error(err))
		r.discard(context.WithoutCancel(ctx), log, &run)
	} else {
		run.Status = ledger.StatusSucceeded
		log.Info("run succeeded", zap.String("index", res.IndexKey), zap.Duration("elapsed", done.Sub(started)))
	}
	if serr := r.ledger.Save(context.WithoutCancel(ctx), run); serr != nil {
		return Result{Run: run}, errors.Join(err, fmt.Errorf("record run end: %w", serr))
	}
	res.Run = run
	return res, err
}

// discard removes whatever a failed run already uploaded so no partial
// report stays behind. The ledger keeps the section outcomes but drops the
// artifact entries.
func (r *Runner) discard(ctx context.Context, log *zap.Logger, run *ledger.Run) {
	removed, err := r.publisher.Discard(ctx, run.ID)
	if err != nil {
		log.Warn("discard partial artifacts", zap.Int("removed", removed), zap.Error(err))
	}
	run.Artifacts = nil
	for i := range run.Sections {
		run.Sections[i].Artifacts = nil
	}
}

func (r *Runner) run(ctx context.Context, log *zap.Logger, run *ledger.Run, sections []Section) (Result, error) {
	st := &runState{id: run.ID, ledger: run}
	meta, err := r.provider.Metadata(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load metadata: %w", err)
	}
	st.meta = meta
	keep, err := meta.LineagePredicate(r.lineage, r.match)
	if err != nil {
		return Result{}, err
	}
	st.keep = keep
	st.ann = r.annotateGenes(ctx, log, sections)

	book, err := workbook.New()
	if err != nil {
		return Result{}, err
	}
	defer book.Close()
	st.book = book
	st.page = indexPage{RunID: run.ID, Lineage: r.lineage, GeneratedAt: run.StartedAt}

	for _, s := range sections {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := r.section(ctx, log, st, s); err != nil {
			return Result{}, err
		}
	}
	return r.finish(ctx, log, st)
}

// annotateGenes fetches gene annotation when a section needs it. A lookup
// failure is logged and leaves every gene unplaced.
func (r *Runner) annotateGenes(ctx context.Context, log *zap.Logger, sections []Section) geneinfo.Annotations {
	need := false
	for _, s := range sections {
		if s.Mode == ModeGenes || s.RowOrder == OrderGenome {
			need = true
		}
	}
	if !need || r.geneInfo == nil {
		return geneinfo.Annotations{}
	}
	start := r.now()
	ann, err := r.geneInfo.Lookup(ctx, r.genes.Symbols())
	r.metrics.Observe(ctx, "geneinfo", err == nil, r.now().Sub(start))
	if err != nil {
		log.Warn("gene annotation unavailable", zap.Error(err))
		return geneinfo.Annotations{}
	}
	log.Debug("gene annotation", zap.Int("requested", r.genes.Len()), zap.Int("found", len(ann)))
	return ann
}

func (r *Runner) section(ctx context.Context, log *zap.Logger, st *runState, s Section) error {
	start := r.now()
	log = log.With(zap.String("section", s.ID), zap.String("mode", string(s.Mode)))
	rec := ledger.Section{ID: s.ID, Title: s.Title, Mode: string(s.Mode), Status: ledger.StatusRunning, StartedAt: start}

	out, err := r.build(ctx, st, s)
	var arts []ledger.Artifact
	if err == nil {
		arts, err = r.publisher.Publish(ctx, st.id, out.files)
	}
	elapsed := r.now().Sub(start)
	rec.DurationMS = elapsed.Milliseconds()
	rec.Rows = out.rows
	r.metrics.SectionDone(s.ID, string(s.Mode), err == nil, elapsed)
	if err != nil {
		rec.Status = ledger.StatusFailed
		rec.Error = err.Error()
		st.ledger.Sections = append(st.ledger.Sections, rec)
		return fmt.Errorf("section %s: %w", s.ID, err)
	}
	rec.Status = ledger.StatusSucceeded
	rec.Artifacts = arts
	st.ledger.Sections = append(st.ledger.Sections, rec)
	st.ledger.Artifacts = append(st.ledger.Artifacts, arts...)
	if err := r.ledger.Save(ctx, *st.ledger); err != nil {
		return fmt.Errorf("section %s: record progress: %w", s.ID, err)
	}
	out.index.Rows = out.rows
	st.page.Sections = append(st.page.Sections, out.index)
	log.Info("section done", zap.Int("rows", out.rows), zap.Int("artifacts", len(arts)), zap.Duration("elapsed", elapsed))
	return nil
}

// finish publishes the workbook and the metrics snapshot, then the index.
// The index goes last so its presence marks a complete report.
func (r *Runner) finish(ctx context.Context, log *zap.Logger, st *runState) (Result, error) {
	var files []File
	if len(st.book.Sheets()) > 0 {
		payload, err := st.book.Bytes()
		if err != nil {
			return Result{}, err
		}
		files = append(files, File{Name: "figures.xlsx", Kind: KindWorkbook, ContentType: workbook.ContentType, Payload: payload})
		st.page.Workbook = "figures.xlsx"
	}
	var snap strings.Builder
	if err := r.metrics.WriteText(&snap); err != nil {
		return Result{}, err
	}
	files = append(files, File{Name: "metrics.prom", Kind: KindMetrics, ContentType: "text/plain; version=0.0.4", Payload: []byte(snap.String())})
	st.page.Metrics = "metrics.prom"
	arts, err := r.publisher.Publish(ctx, st.id, files)
	if err != nil {
		return Result{}, err
	}
	st.ledger.Artifacts = append(st.ledger.Artifacts, arts...)

	index, err := renderIndex(st.page)
	if err != nil {
		return Result{}, err
	}
	arts, err = r.publisher.Publish(ctx, st.id, []File{{Name: "index.html", Kind: KindIndex, ContentType: "text/html; charset=utf-8", Payload: index}})
	if err != nil {
		return Result{}, err
	}
	st.ledger.Artifacts = append(st.ledger.Artifacts, arts...)
	log.Debug("index published", zap.String("key", arts[0].Key))
	return Result{IndexKey: arts[0].Key}, nil
}
