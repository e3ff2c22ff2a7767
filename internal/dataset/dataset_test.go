package dataset

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"omicsreport/internal/blob"
	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

const (
	dependencyCSV = "ModelID,METTL3 (56339),FTO (79068),YTHDF2 (51441)\n" +
		"ACH-1,-0.81,0.02,-1.2\n" +
		"ACH-2,NA,0.10,-0.4\n"
	methylationTSV = "sample\tMETTL3_1_1000\tMETTL3_1_2000\tFTO_16_500\n" +
		"ACH-1\t0.1\t0.5\t0.9\n" +
		"ACH-2\t0.3\tnan\t0.8\n"
	methylationLociTSV = "locus\tACH-1\tACH-2\n" +
		"METTL3_1_1000\t0.1\t0.3\n" +
		"METTL3_1_2000\t0.5\tnan\n" +
		"FTO_16_500\t0.9\t0.8\n"
	mutationsCSV = "HugoSymbol,ModelID,VariantType,VariantInfo\n" +
		"METTL3,ACH-1,SNP,MISSENSE\n" +
		"METTL3,ACH-1,DEL,FRAME_SHIFT_DEL\n" +
		"FTO,ACH-2,SNP,SILENT\n"
	modelCSV = "ModelID,CellLineName,OncotreeLineage,PrimaryOrMetastasis,OncotreeSubtype,SampleCollectionSite\n" +
		"ACH-1,MCF7,Breast,Metastatic,Invasive Breast Carcinoma,pleural_effusion\n" +
		"ACH-2,HCC1937,Breast,Primary,NA,\n" +
		"ACH-3,A549,Lung,,Lung Adenocarcinoma,lung\n"
)

type recorder struct{ loads map[string]int }

func (r *recorder) TableLoaded(id string, rows int, _ time.Duration) { r.loads[id] = rows }

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testProvider(t *testing.T) (*BlobProvider, *recorder) {
	t.Helper()
	ctx := context.Background()
	store := blob.NewMemory()
	put := func(key string, b []byte) {
		_, err := store.Put(ctx, key, bytes.NewReader(b), blob.PutOptions{})
		require.NoError(t, err)
	}
	put("depmap/CRISPRGeneEffect.csv.gz", gz(t, dependencyCSV))
	put("ccle/methylation.tsv", []byte(methylationTSV))
	put("ccle/methylation_loci.tsv", []byte(methylationLociTSV))
	put("depmap/mutations.csv", []byte(mutationsCSV))
	put("depmap/Model.csv", []byte(modelCSV))

	rec := &recorder{loads: map[string]int{}}
	p, err := NewBlobProvider(store, []TableSpec{
		{ID: "dependency", Key: "depmap/CRISPRGeneEffect.csv.gz", Layout: LayoutWide, Label: LabelParen},
		{ID: "methylation", Key: "ccle/methylation.tsv", Layout: LayoutWide, Label: LabelPrefix},
		{ID: "methylation_loci", Key: "ccle/methylation_loci.tsv", Layout: LayoutWide, Label: LabelPrefix, GenesInRows: true},
		{ID: "mutations", Key: "depmap/mutations.csv", Layout: LayoutLong, Events: true, Gene: "HugoSymbol", Sample: "ModelID"},
		{ID: "metadata", Key: "depmap/Model.csv", Layout: LayoutMetadata},
		{ID: "expression", Key: "depmap/missing.csv", Layout: LayoutWide, Label: LabelParen},
	}, WithObserver(rec))
	require.NoError(t, err)
	return p, rec
}

func TestLabelRules(t *testing.T) {
	require.Equal(t, "METTL3", LabelParen.Symbol("METTL3 (56339)"))
	require.Equal(t, "HNRNPA2B1", LabelParen.Symbol(" HNRNPA2B1(3181) "))
	require.Equal(t, "FTO", LabelParen.Symbol("FTO"))
	require.Equal(t, "METTL3", LabelPrefix.Symbol("METTL3_1_123"))
	require.Equal(t, "WTAP", LabelPrefix.Symbol("WTAP"))
	require.Equal(t, "A_B", LabelPlain.Symbol("A_B"))
}

func TestParseValue(t *testing.T) {
	for _, na := range []string{"", "NA", "NaN", "nan", "null", " "} {
		v, err := ParseValue(na)
		require.NoError(t, err)
		require.True(t, table.IsMissing(v), na)
	}
	v, err := ParseValue(" -1.5e-1 ")
	require.NoError(t, err)
	require.Equal(t, -0.15, v)
	_, err = ParseValue("high")
	require.Error(t, err)
}

func TestAcquireWideGzip(t *testing.T) {
	p, rec := testProvider(t)
	lease, err := p.Acquire(context.Background(), "dependency")
	require.NoError(t, err)
	defer lease.Release()

	tbl := lease.Table()
	require.Equal(t, 6, tbl.Len())
	require.Equal(t, []string{"METTL3", "FTO", "YTHDF2"}, tbl.Genes())
	require.Equal(t, []string{"ACH-1", "ACH-2"}, tbl.Samples())
	require.False(t, tbl.HasAttr(LocusAttr))
	require.Equal(t, 6, rec.loads["dependency"])

	m, err := table.Pivot(tbl, table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{})
	require.NoError(t, err)
	v, ok := m.At(0, 0)
	require.True(t, ok)
	require.Equal(t, -0.81, v)
	_, ok = m.At(0, 1)
	require.False(t, ok, "NA cell must be missing")
}

func TestAcquireMethylationSampleRows(t *testing.T) {
	p, _ := testProvider(t)
	lease, err := p.Acquire(context.Background(), "methylation")
	require.NoError(t, err)
	defer lease.Release()
	tbl := lease.Table()
	require.Equal(t, 6, tbl.Len())
	require.Equal(t, []string{"METTL3", "FTO"}, tbl.Genes())
	require.Equal(t, []string{"ACH-1", "ACH-2"}, tbl.Samples())
	require.True(t, tbl.HasAttr(LocusAttr))
	require.Equal(t, "METTL3_1_2000", tbl.Row(1).Field(LocusAttr))
	require.Equal(t, "FTO_16_500", tbl.Row(2).Field(LocusAttr))

	_, err = table.Pivot(tbl, table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{})
	require.ErrorIs(t, err, table.ErrAggregationRequired)

	m, err := table.Pivot(table.CollapseMean(tbl), table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"METTL3", "FTO"}, m.RowKeys())
	v, ok := m.At(0, 0)
	require.True(t, ok)
	require.InDelta(t, 0.3, v, 1e-12)
	v, ok = m.At(0, 1)
	require.True(t, ok, "one observed locus is enough")
	require.InDelta(t, 0.3, v, 1e-12)
	v, ok = m.At(1, 1)
	require.True(t, ok)
	require.InDelta(t, 0.8, v, 1e-12)
}

func TestAcquireWideGenesInRowsKeepsLoci(t *testing.T) {
	p, _ := testProvider(t)
	lease, err := p.Acquire(context.Background(), "methylation_loci")
	require.NoError(t, err)
	defer lease.Release()
	tbl := lease.Table()
	require.Equal(t, 6, tbl.Len())
	require.Equal(t, []string{"METTL3", "FTO"}, tbl.Genes())
	require.Equal(t, "METTL3_1_2000", tbl.Row(2).Field(LocusAttr))

	_, err = table.Pivot(tbl, table.AxisGene, table.AxisSample, table.ColValue, table.PivotOptions{})
	require.ErrorIs(t, err, table.ErrAggregationRequired)
	collapsed := table.CollapseMean(tbl)
	require.Equal(t, 4, collapsed.Len())
}

func TestAcquireLongEvents(t *testing.T) {
	p, _ := testProvider(t)
	lease, err := p.Acquire(context.Background(), "mutations")
	require.NoError(t, err)
	tbl := lease.Table()
	require.Equal(t, table.KindEvents, tbl.Kind)
	require.Equal(t, []string{"VariantType", "VariantInfo"}, tbl.Attrs())
	require.Equal(t, "DEL", tbl.Row(1).Field("VariantType"))
	require.True(t, table.IsMissing(tbl.Row(0).Value))

	lease.Release()
	require.Nil(t, lease.Table())
	lease.Release()
}

func TestMetadata(t *testing.T) {
	p, rec := testProvider(t)
	idx, err := p.Metadata(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, idx.Len())
	require.Equal(t, 3, rec.loads["metadata"])

	r, ok := idx.Get("ACH-1")
	require.True(t, ok)
	require.Equal(t, samples.Metastasis, r.MetastaticStatus)
	require.Equal(t, "MCF7", r.CellLine)

	_, ok = idx.Lookup("ACH-2", samples.FieldReceptorSubtype)
	require.False(t, ok, "NA subtype must be unrecorded")
	_, ok = idx.Lookup("ACH-3", samples.FieldMetastaticStatus)
	require.False(t, ok)

	keep, err := idx.LineagePredicate("breast", samples.MatchExact)
	require.NoError(t, err)
	require.Len(t, idx.Select(keep), 2)
}

func TestUnavailableTables(t *testing.T) {
	p, _ := testProvider(t)
	_, err := p.Acquire(context.Background(), "expression")
	require.True(t, errors.Is(err, ErrTableUnavailable), "missing object: %v", err)
	require.Contains(t, err.Error(), "expression")

	_, err = p.Acquire(context.Background(), "copy_number")
	require.ErrorIs(t, err, ErrTableUnavailable)
	require.Contains(t, err.Error(), "copy_number")

	_, err = p.Acquire(context.Background(), "metadata")
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	_, err := store.Put(ctx, "bad.csv", strings.NewReader("ModelID,METTL3\nACH-1,high\n"), blob.PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "long.csv", strings.NewReader("g,s\nA,x\n"), blob.PutOptions{})
	require.NoError(t, err)
	p, err := NewBlobProvider(store, []TableSpec{
		{ID: "bad", Key: "bad.csv", Layout: LayoutWide},
		{ID: "long", Key: "long.csv", Layout: LayoutLong, Value: "v"},
	})
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "bad")
	require.ErrorContains(t, err, "line 2")
	_, err = p.Acquire(ctx, "long")
	require.ErrorContains(t, err, "missing gene column")

	_, err = p.Metadata(ctx)
	require.ErrorIs(t, err, ErrTableUnavailable)
}

func TestSpecValidation(t *testing.T) {
	cases := []TableSpec{
		{Key: "k", Layout: LayoutLong},
		{ID: "a", Layout: LayoutLong},
		{ID: "a", Key: "k", Layout: "matrix"},
		{ID: "a", Key: "k", Layout: LayoutLong, Label: "suffix"},
		{ID: "a", Key: "k", Layout: LayoutWide, Events: true},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	_, err := NewBlobProvider(blob.NewMemory(), []TableSpec{
		{ID: "a", Key: "a.csv", Layout: LayoutLong},
		{ID: "a", Key: "b.csv", Layout: LayoutLong},
	})
	require.Error(t, err)
	_, err = NewBlobProvider(blob.NewMemory(), []TableSpec{
		{ID: "m1", Key: "a.csv", Layout: LayoutMetadata},
		{ID: "m2", Key: "b.csv", Layout: LayoutMetadata},
	})
	require.Error(t, err)
}
