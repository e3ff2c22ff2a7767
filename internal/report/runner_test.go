package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"omicsreport/internal/blob"
	"omicsreport/internal/dataset"
	"omicsreport/internal/geneinfo"
	"omicsreport/internal/genes"
	"omicsreport/internal/ledger"
	"omicsreport/internal/metrics"
	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

var (
	breast = []string{"ACH-1", "ACH-2", "ACH-3", "ACH-4"}
	lung   = "ACH-5"
	tested = []string{"METTL3", "KIAA1429", "FTO", "YTHDF1"}
)

// memProvider hands out fresh copies of fixture tables and remembers every
// lease so tests can check they were released.
type memProvider struct {
	mu     sync.Mutex
	meta   *samples.Index
	tables map[string]func() *table.Table
	fail   map[string]error
	leases []*dataset.Lease
	asked  []string
}

func (p *memProvider) Acquire(_ context.Context, id string) (*dataset.Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, id)
	if err := p.fail[id]; err != nil {
		return nil, err
	}
	build, ok := p.tables[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, dataset.ErrTableUnavailable)
	}
	l := dataset.NewLease(id, build())
	p.leases = append(p.leases, l)
	return l, nil
}

func (p *memProvider) Metadata(context.Context) (*samples.Index, error) { return p.meta, nil }

func value(g, s int) float64 { return float64(g)*1.5 + float64(s)*0.7 + float64((g*s)%3)*0.4 - 2 }

func valueTable(id string) func() *table.Table {
	return func() *table.Table {
		t := table.New(id, table.KindValues)
		for g, gene := range tested {
			for s, sample := range append(append([]string(nil), breast...), lung) {
				t.Append(table.Row{Gene: gene, Sample: sample, Value: value(g+1, s+1)})
			}
		}
		// not curated
		t.Append(table.Row{Gene: "TP53", Sample: "ACH-1", Value: 9})
		return t
	}
}

func methylation() *table.Table {
	t := table.New(TableMethylation, table.KindValues, dataset.LocusAttr)
	for g, gene := range tested {
		for s, sample := range breast {
			for locus, shift := range []float64{-0.25, 0.25} {
				t.Append(table.Row{
					Gene: gene, Sample: sample, Value: 0.5 + float64(g)*0.125 + float64(s)*0.0625 + shift,
					Attrs: map[string]string{dataset.LocusAttr: fmt.Sprintf("%s_%d", gene, locus)},
				})
			}
		}
	}
	return t
}

func mutations() *table.Table {
	t := table.New(TableMutations, table.KindEvents, attrVariantInfo)
	add := func(gene, sample, class string) {
		t.Append(table.Row{Gene: gene, Sample: sample, Value: table.Missing, Attrs: map[string]string{attrVariantInfo: class}})
	}
	add("METTL3", "ACH-1", "MISSENSE")
	add("METTL3", "ACH-1", "NONSENSE")
	add("FTO", "ACH-2", "MISSENSE")
	add("YTHDF1", "ACH-3", "SILENT")
	add("YTHDF1", lung, "MISSENSE")
	return t
}

func fixtureProvider(t *testing.T) *memProvider {
	t.Helper()
	meta, err := samples.NewIndex([]samples.Record{
		{SampleID: "ACH-1", CellLine: "HCC1954", Lineage: "Breast", MetastaticStatus: samples.Primary, ReceptorSubtype: "HER2+"},
		{SampleID: "ACH-2", CellLine: "MDAMB231", Lineage: "Breast", MetastaticStatus: samples.Metastasis, ReceptorSubtype: "TNBC"},
		{SampleID: "ACH-3", CellLine: "MCF7", Lineage: "Breast", MetastaticStatus: samples.Metastasis, ReceptorSubtype: "luminal"},
		{SampleID: "ACH-4", CellLine: "HCC38", Lineage: "Breast", MetastaticStatus: samples.Primary, ReceptorSubtype: "TNBC"},
		{SampleID: lung, CellLine: "A549", Lineage: "Lung", MetastaticStatus: samples.Primary},
	})
	require.NoError(t, err)
	return &memProvider{
		meta: meta,
		tables: map[string]func() *table.Table{
			TableExpression:  valueTable(TableExpression),
			TableDependency:  valueTable(TableDependency),
			TableCopyNumber:  valueTable(TableCopyNumber),
			TableMethylation: methylation,
			TableMutations:   mutations,
		},
	}
}

type fakeGeneInfo struct {
	ann geneinfo.Annotations
	err error
}

func (f fakeGeneInfo) Lookup(context.Context, []string) (geneinfo.Annotations, error) {
	return f.ann, f.err
}

var placed = geneinfo.Annotations{
	"YTHDF1": {Symbol: "YTHDF1", Name: "YTH N6-methyladenosine RNA binding protein F1", Chromosome: "20", Start: 63195429, End: 63216128},
	"FTO":    {Symbol: "FTO", Name: "FTO alpha-ketoglutarate dependent dioxygenase", Chromosome: "16", Start: 53701692, End: 54158512},
	"METTL3": {Symbol: "METTL3", Name: "methyltransferase 3, N6-adenosine-methyltransferase complex catalytic subunit", Chromosome: "14", Start: 21498117, End: 21511378},
}

type harness struct {
	provider *memProvider
	store    *blob.Memory
	runs     *ledger.Memory
	metrics  *metrics.Recorder
	runner   *Runner
}

func newHarness(t *testing.T, info geneinfo.Lookuper) *harness {
	t.Helper()
	h := &harness{
		provider: fixtureProvider(t),
		store:    blob.NewMemory(),
		runs:     ledger.NewMemory(),
		metrics:  metrics.New(),
	}
	pub := NewPublisher(h.store, WithArtifactObserver(h.metrics), WithParallelism(2))
	h.runner = NewRunner(h.provider, pub, h.runs,
		WithLineage("Breast", samples.MatchExact),
		WithMetrics(h.metrics),
		WithGeneInfo(info),
	)
	h.runner.newID = func() string { return "run-1" }
	h.runner.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) read(t *testing.T, name string) []byte {
	t.Helper()
	b, err := blob.ReadAll(context.Background(), h.store, "runs/run-1/"+name)
	require.NoError(t, err)
	return b
}

func TestRunDefaultCatalog(t *testing.T) {
	h := newHarness(t, fakeGeneInfo{ann: placed})
	ctx := context.Background()

	res, err := h.runner.Run(ctx, DefaultSections())
	require.NoError(t, err)
	require.Equal(t, "runs/run-1/index.html", res.IndexKey)
	require.Equal(t, ledger.StatusSucceeded, res.Run.Status)

	stored, err := h.runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusSucceeded, stored.Status)
	require.Len(t, stored.Sections, len(DefaultSections()))
	require.Equal(t, 1.0, stored.Metrics["omicsreport_operations_total{operation=run,status=success}"])
	require.Equal(t, 1.0, stored.Metrics["omicsreport_section_duration_seconds{mode=heatmap,section=expression_heatmap,status=success}"])
	for _, s := range stored.Sections {
		require.Equal(t, ledger.StatusSucceeded, s.Status, s.ID)
		require.NotEmpty(t, s.Artifacts, s.ID)
	}
	require.NotNil(t, stored.CompletedAt)

	for _, l := range h.provider.leases {
		require.Nil(t, l.Table(), "lease %s not released", l.ID())
	}

	index := string(h.read(t, "index.html"))
	for _, s := range DefaultSections() {
		require.Contains(t, index, `id="`+s.ID+`"`)
	}
	require.Contains(t, index, "figures.xlsx")
	require.Contains(t, index, "chr16:53701692-54158512")
	require.Contains(t, string(h.read(t, "expression_heatmap.png")), "PNG")

	f, err := excelize.OpenReader(bytes.NewReader(h.read(t, "figures.xlsx")))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("expression_heatmap")
	require.NoError(t, err)
	require.ElementsMatch(t, breast, rows[0][1:], "lineage filter keeps breast lines only")
	var genesInSheet []string
	for _, r := range rows[1:] {
		genesInSheet = append(genesInSheet, r[0])
	}
	require.Equal(t, []string{"METTL3", "VIRMA", "FTO", "YTHDF1"}, genesInSheet, "aliases resolved, curated order, TP53 dropped")

	rows, err = f.GetRows("methylation_heatmap")
	require.NoError(t, err)
	require.Equal(t, "METTL3", rows[1][0])
	require.Equal(t, "FTO", rows[2][0])
	require.Equal(t, "YTHDF1", rows[3][0])
	require.Len(t, rows, 4, "unplaced VIRMA is left out")
	require.Equal(t, "0.75", rows[2][1], "loci averaged")

	rows, err = f.GetRows("subtype_status")
	require.NoError(t, err)
	require.Equal(t, []string{"receptor_subtype \\ metastatic_status", "Primary", "Metastasis", "unknown"}, rows[0])

	prom := string(h.read(t, "metrics.prom"))
	require.Contains(t, prom, `omicsreport_section_duration_seconds_count{mode="heatmap",section="expression_heatmap",status="success"} 1`)
	require.Contains(t, prom, "omicsreport_artifact_bytes_total")
}

func TestRunFailsFastWithoutIndex(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.fail = map[string]error{TableDependency: fmt.Errorf("table dependency: %w", dataset.ErrTableUnavailable)}
	ctx := context.Background()
	sections, err := Select(DefaultSections(), []string{"expression_heatmap", "dependency_strip", "copy_number_violin"})
	require.NoError(t, err)

	res, err := h.runner.Run(ctx, sections)
	require.Error(t, err)
	require.ErrorIs(t, err, dataset.ErrTableUnavailable)
	require.Contains(t, err.Error(), "section dependency_strip")
	require.Equal(t, ledger.StatusFailed, res.Run.Status)

	stored, err := h.runs.Get(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusFailed, stored.Status)
	require.Len(t, stored.Sections, 2)
	require.Equal(t, ledger.StatusSucceeded, stored.Sections[0].Status)
	require.Empty(t, stored.Sections[0].Artifacts)
	require.Empty(t, stored.Artifacts)
	require.Equal(t, 1.0, stored.Metrics["omicsreport_operations_total{operation=run,status=error}"])
	require.Equal(t, ledger.StatusFailed, stored.Sections[1].Status)
	require.NotContains(t, h.provider.asked, TableCopyNumber)

	_, err = h.store.Head(ctx, "runs/run-1/index.html")
	require.ErrorIs(t, err, blob.ErrNotFound)
	left, err := h.store.List(ctx, "runs/run-1/")
	require.NoError(t, err)
	require.Empty(t, left, "figures of the succeeded section must be removed")
	for _, l := range h.provider.leases {
		require.Nil(t, l.Table())
	}
}

func TestRunGeneInfoFailureLeavesGenesUnplaced(t *testing.T) {
	h := newHarness(t, fakeGeneInfo{err: errors.New("connection refused")})
	sections, err := Select(DefaultSections(), []string{"methylation_heatmap", "gene_annotation"})
	require.NoError(t, err)

	_, err = h.runner.Run(context.Background(), sections)
	require.NoError(t, err)

	index := string(h.read(t, "index.html"))
	require.Contains(t, index, "No observations matched the selection.")
	genesCSV := string(h.read(t, "gene_annotation.csv"))
	require.True(t, strings.HasPrefix(genesCSV, "symbol,category,name,chromosome,start,end,location\nMETTL3,writing,,,,,\n"), genesCSV)
}

func TestRunGeneTableHonoursCategories(t *testing.T) {
	h := newHarness(t, fakeGeneInfo{ann: placed})
	s := NewSection("erasers").Mode(ModeGenes).Categories(genes.Erasing).MustBuild()

	_, err := h.runner.Run(context.Background(), []Section{s})
	require.NoError(t, err)

	want := genes.Curated().ByCategory(genes.Erasing)
	csvRows, err := csv.NewReader(bytes.NewReader(h.read(t, "erasers.csv"))).ReadAll()
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(h.read(t, "figures.xlsx")))
	require.NoError(t, err)
	defer f.Close()
	sheet, err := f.GetRows("erasers")
	require.NoError(t, err)

	require.Len(t, csvRows, len(want)+1)
	require.Len(t, sheet, len(want)+1)
	for i, g := range want {
		require.Equal(t, g, csvRows[i+1][0])
		require.Equal(t, g, sheet[i+1][0])
	}
}

func TestRunAllLineages(t *testing.T) {
	h := newHarness(t, nil)
	s := NewSection("all_mutations").Mode(ModeBalloon).Table(TableMutations).
		Crosstab(table.ColGene, attrVariantInfo).AllLineages().MustBuild()

	_, err := h.runner.Run(context.Background(), []Section{s})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(h.read(t, "figures.xlsx")))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("all_mutations")
	require.NoError(t, err)
	require.Equal(t, []string{"gene \\ VariantInfo", "MISSENSE", "NONSENSE", "SILENT"}, rows[0])
	require.Equal(t, []string{"YTHDF1", "1", "0", "1"}, rows[3], "lung call counted")
}

func TestRunRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.runner.Run(context.Background(), nil)
	require.Error(t, err)

	_, err = h.runner.Run(context.Background(), []Section{{ID: "x", Mode: "pie"}})
	require.ErrorContains(t, err, "unknown mode")
	_, err = h.runs.Get(context.Background(), "run-1")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}
