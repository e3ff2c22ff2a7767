package report

import (
	"omicsreport/internal/cluster"
	"omicsreport/internal/genes"
	"omicsreport/internal/samples"
	"omicsreport/internal/table"
)

// Table ids used by the default catalog; config.DefaultTables maps them to
// files.
const (
	TableExpression  = "expression"
	TableDependency  = "dependency"
	TableCopyNumber  = "copy_number"
	TableMethylation = "methylation"
	TableMutations   = "mutations"
)

// attrVariantInfo is the mutation class column of the mutation calls.
const attrVariantInfo = "VariantInfo"

// DefaultSections is the standard m6A regulator report.
func DefaultSections() []Section {
	return []Section{
		NewSection("expression_heatmap").
			Title("Expression of m6A regulators").
			Caption("log2(TPM+1) expression, genes and cell lines clustered by complete linkage.").
			Mode(ModeHeatmap).Table(TableExpression).
			Rows(OrderCluster).ClusterColumns().
			RowTracks(genes.FieldCategory).
			ColTracks(samples.FieldReceptorSubtype, samples.FieldMetastaticStatus).
			MustBuild(),
		NewSection("dependency_strip").
			Title("Gene dependency").
			Caption("CRISPR gene effect per cell line, genes ranked by mean effect. Dashed: mean of the selected lineage; dotted: mean over all cell lines.").
			Mode(ModeRanked).Table(TableDependency).
			ColorBy(samples.FieldReceptorSubtype).
			Labels("", "gene effect").
			MustBuild(),
		NewSection("dependency_heatmap").
			Title("Gene dependency heatmap").
			Caption("CRISPR gene effect, clustered on correlation distance.").
			Mode(ModeHeatmap).Table(TableDependency).
			Rows(OrderCluster).ClusterColumns().Metric(cluster.Correlation).
			RowTracks(genes.FieldCategory).
			ColTracks(samples.FieldReceptorSubtype).
			MustBuild(),
		NewSection("copy_number_violin").
			Title("Relative copy number").
			Caption("Relative copy number per gene; the dashed line marks the diploid level.").
			Mode(ModeViolin).Table(TableCopyNumber).
			Reference(1).
			Labels("", "relative copy number").
			MustBuild(),
		NewSection("expression_vs_dependency").
			Title("Expression against dependency").
			Caption("Each panel pairs a gene's expression with its gene effect in the same cell lines. Spearman rho and the number of paired cell lines are shown per panel.").
			Mode(ModeCorrelation).Table(TableExpression).Against(TableDependency).
			Labels("expression", "gene effect").
			MustBuild(),
		NewSection("methylation_heatmap").
			Title("Promoter methylation").
			Caption("Mean TSS methylation per gene, genes in genome order. Genes without a genomic position are omitted.").
			Mode(ModeHeatmap).Table(TableMethylation).Aggregate().
			Rows(OrderGenome).ClusterColumns().
			RowTracks(genes.FieldCategory).
			ColTracks(samples.FieldReceptorSubtype).
			MustBuild(),
		NewSection("mutation_classes").
			Title("Mutation classes").
			Caption("Somatic mutation calls per gene and variant class.").
			Mode(ModeBalloon).Table(TableMutations).
			Crosstab(table.ColGene, attrVariantInfo).
			MustBuild(),
		NewSection("mutation_subtype").
			Title("Mutation classes by subtype").
			Caption("Somatic mutation calls by variant class and receptor subtype.").
			Mode(ModeBalloon).Table(TableMutations).
			Crosstab(attrVariantInfo, samples.FieldReceptorSubtype).
			MustBuild(),
		NewSection("subtype_status").
			Title("Cell line subtypes").
			Caption("Cell lines by receptor subtype and primary or metastatic origin.").
			Mode(ModeBalloon).
			Crosstab(samples.FieldReceptorSubtype, samples.FieldMetastaticStatus).
			Domains(nil, []string{string(samples.Primary), string(samples.Metastasis), table.Unknown}).
			MustBuild(),
		NewSection("gene_annotation").
			Title("Curated genes").
			Caption("m6A writers, erasers and readers with their genomic location.").
			Mode(ModeGenes).
			MustBuild(),
	}
}
